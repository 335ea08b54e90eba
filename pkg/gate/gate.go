// Package gate is the boundary between the run engine and downstream
// post-processing (bestK statistics, plotting).
//
// The engine's responsibility ends at producing a complete snapshot: one
// result per requested (program, K, replicate) cell, no duplicates, no
// omissions. The gate receives that snapshot once the batch is terminal —
// including snapshots with failed, timed-out, crashed or cancelled entries.
// Whether to skip statistics for a partially failed batch is the gate's
// decision, not the engine's.
package gate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/rohankumardubey/Structure-threader/pkg/events"
	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

// Gate consumes the final batch snapshot.
//
// Process is invoked exactly once per batch, only after every job has
// reached a terminal state. Completion order across jobs is unconstrained
// and must not be assumed; only the snapshot's submission order is stable.
type Gate interface {
	Process(ctx context.Context, snap *ledger.Snapshot, outputDir string) error
}

// ReportGate is the default gate: it locates each job's result files by
// convention under the output directory, emits one report record per job,
// and prints a human-readable batch report.
type ReportGate struct {
	events events.Writer
	out    io.Writer
	logger *zap.Logger
}

// NewReportGate creates a report gate.
//
// Parameters:
//   - ev: Event writer for report records (nil means discard)
//   - out: Destination for the human-readable report (nil means stdout)
func NewReportGate(ev events.Writer, out io.Writer) *ReportGate {
	if ev == nil {
		ev = events.NopWriter{}
	}
	if out == nil {
		out = os.Stdout
	}
	return &ReportGate{events: ev, out: out, logger: zap.NewNop()}
}

// WithLogger sets the structured logger. Returns the gate for chaining.
func (g *ReportGate) WithLogger(l *zap.Logger) *ReportGate {
	g.logger = l
	return g
}

// Process writes the batch report. Returns an error only on I/O failure;
// job failures in the snapshot are reported, not propagated.
func (g *ReportGate) Process(ctx context.Context, snap *ledger.Snapshot, outputDir string) error {
	if _, err := fmt.Fprintf(g.out, "Batch report (%d jobs)\n", len(snap.Results)); err != nil {
		return err
	}

	for _, res := range snap.Results {
		files := locateOutputs(outputDir, res.Spec)

		rec := &events.ReportRecord{
			JobID:       res.Spec.ID(),
			K:           res.Spec.K,
			Replicate:   res.Spec.Replicate,
			Status:      string(res.Status),
			ExitCode:    res.ExitCode,
			DurationMs:  res.Duration.Milliseconds(),
			LogPath:     res.Spec.LogPath,
			OutputFiles: files,
		}
		if err := g.events.WriteReport(ctx, rec); err != nil {
			g.logger.Debug("failed to emit report record", zap.Error(err))
		}

		line := fmt.Sprintf("  %-28s %-10s exit=%-3d %8s %d output file(s)\n",
			res.Spec.ID(), res.Status, res.ExitCode,
			res.Duration.Round(time.Millisecond), len(files))
		if _, err := io.WriteString(g.out, line); err != nil {
			return err
		}
	}

	counts := snap.CountByStatus()
	if _, err := fmt.Fprintf(g.out, "Totals: %s\n", formatCounts(counts)); err != nil {
		return err
	}
	if !snap.AllSucceeded() {
		if _, err := fmt.Fprintln(g.out, "Warning: batch has non-succeeded jobs; review logs before using downstream results."); err != nil {
			return err
		}
	}
	return nil
}

// locateOutputs finds a job's result files by naming convention. The
// engine never interprets these files; it only reports where they are.
func locateOutputs(outputDir string, spec jobgrid.Spec) []string {
	var pattern string
	switch spec.Program {
	case jobgrid.ProgramFastStructure:
		// fastStructure writes fS_run_K.<k>.meanQ, .meanP, .varQ, .log
		pattern = fmt.Sprintf("fS_run_K.%d.*", spec.K)
	default:
		// STRUCTURE writes str_K<k>_rep<r>_f (and _q with some settings)
		pattern = fmt.Sprintf("str_K%d_rep%d*", spec.K, spec.Replicate)
	}

	matches, err := doublestar.Glob(os.DirFS(outputDir), pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(outputDir, m)
	}
	return files
}

func formatCounts(counts map[ledger.Status]int) string {
	order := []ledger.Status{
		ledger.StatusSucceeded,
		ledger.StatusFailed,
		ledger.StatusTimedOut,
		ledger.StatusCrashed,
		ledger.StatusCancelled,
	}
	out := ""
	for _, s := range order {
		if n := counts[s]; n > 0 {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%d %s", n, s)
		}
	}
	if out == "" {
		out = "0 jobs"
	}
	return out
}

// NopGate discards the snapshot. Used when post-processing is disabled.
type NopGate struct{}

func (NopGate) Process(context.Context, *ledger.Snapshot, string) error { return nil }
