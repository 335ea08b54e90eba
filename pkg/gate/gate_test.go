package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/Structure-threader/pkg/events"
	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

func snapshotFor(t *testing.T, specs []jobgrid.Spec, statuses []ledger.Status) *ledger.Snapshot {
	t.Helper()
	led, err := ledger.New(specs)
	require.NoError(t, err)
	for i, s := range specs {
		require.NoError(t, led.RecordStart(s.ID()))
		require.NoError(t, led.RecordCompletion(s.ID(), ledger.Result{
			Spec:     s,
			Status:   statuses[i],
			Duration: 2 * time.Second,
		}))
	}
	snap, err := led.Snapshot()
	require.NoError(t, err)
	return snap
}

func TestReportGate_LocatesStructureOutputs(t *testing.T) {
	outDir := t.TempDir()
	specs, err := jobgrid.Build(jobgrid.Params{
		Program:    jobgrid.ProgramStructure,
		BinaryPath: "/opt/bin/structure",
		InputFile:  "/data/in.str",
		OutputDir:  outDir,
		MinK:       1,
		MaxK:       2,
		Replicates: 1,
		Seed:       1,
	})
	require.NoError(t, err)

	// Fake the result files the external binary would have written.
	for _, name := range []string{"str_K1_rep1_f", "str_K2_rep1_f"} {
		require.NoError(t, os.WriteFile(filepath.Join(outDir, name), []byte("results"), 0644))
	}

	var eventBuf, humanBuf bytes.Buffer
	w := events.NewJSONLWriter(&eventBuf, "batch-1", "structure")
	g := NewReportGate(w, &humanBuf)

	snap := snapshotFor(t, specs, []ledger.Status{ledger.StatusSucceeded, ledger.StatusSucceeded})
	require.NoError(t, g.Process(context.Background(), snap, outDir))

	lines := strings.Split(strings.TrimRight(eventBuf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var rec events.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, events.TypeReport, rec.Type)

		var rep events.ReportRecord
		require.NoError(t, json.Unmarshal(rec.Data, &rep))
		assert.Equal(t, specs[i].ID(), rep.JobID)
		require.Len(t, rep.OutputFiles, 1)
		assert.Contains(t, rep.OutputFiles[0], "str_K")
	}

	assert.Contains(t, humanBuf.String(), "2 succeeded")
	assert.NotContains(t, humanBuf.String(), "Warning")
}

func TestReportGate_LocatesFastStructureOutputs(t *testing.T) {
	outDir := t.TempDir()
	specs, err := jobgrid.Build(jobgrid.Params{
		Program:    jobgrid.ProgramFastStructure,
		BinaryPath: "/opt/bin/faststructure",
		InputFile:  "/data/in.str",
		OutputDir:  outDir,
		MinK:       3,
		MaxK:       3,
		Replicates: 1,
		Seed:       1,
	})
	require.NoError(t, err)

	for _, name := range []string{"fS_run_K.3.meanQ", "fS_run_K.3.meanP", "fS_run_K.3.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(outDir, name), nil, 0644))
	}

	var eventBuf bytes.Buffer
	g := NewReportGate(events.NewJSONLWriter(&eventBuf, "b", "faststructure"), &bytes.Buffer{})

	snap := snapshotFor(t, specs, []ledger.Status{ledger.StatusSucceeded})
	require.NoError(t, g.Process(context.Background(), snap, outDir))

	var rec events.Record
	require.NoError(t, json.Unmarshal([]byte(strings.Split(eventBuf.String(), "\n")[0]), &rec))
	var rep events.ReportRecord
	require.NoError(t, json.Unmarshal(rec.Data, &rep))
	assert.Len(t, rep.OutputFiles, 3)
}

func TestReportGate_PartialFailureStillReported(t *testing.T) {
	outDir := t.TempDir()
	specs, err := jobgrid.Build(jobgrid.Params{
		Program:    jobgrid.ProgramStructure,
		BinaryPath: "/opt/bin/structure",
		InputFile:  "/data/in.str",
		OutputDir:  outDir,
		MinK:       1,
		MaxK:       3,
		Replicates: 1,
		Seed:       1,
	})
	require.NoError(t, err)

	var humanBuf bytes.Buffer
	g := NewReportGate(nil, &humanBuf)

	snap := snapshotFor(t, specs, []ledger.Status{
		ledger.StatusSucceeded,
		ledger.StatusFailed,
		ledger.StatusTimedOut,
	})
	require.NoError(t, g.Process(context.Background(), snap, outDir))

	// Every job appears in the report regardless of status, so a user can
	// tell a tool failure from a scheduler failure.
	out := humanBuf.String()
	for _, s := range specs {
		assert.Contains(t, out, s.ID())
	}
	assert.Contains(t, out, "1 succeeded, 1 failed, 1 timed_out")
	assert.Contains(t, out, "Warning")
}

func TestNopGate(t *testing.T) {
	assert.NoError(t, NopGate{}.Process(context.Background(), &ledger.Snapshot{}, ""))
}
