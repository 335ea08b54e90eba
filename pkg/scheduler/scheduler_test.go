package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankumardubey/Structure-threader/pkg/events"
	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

// fakeRunner lets tests drive the pool without external processes. It
// tracks the peak number of concurrently running jobs.
type fakeRunner struct {
	delay        time.Duration
	preflightErr func(spec jobgrid.Spec) error
	status       func(spec jobgrid.Spec) ledger.Status

	current atomic.Int32
	maxSeen atomic.Int32

	mu         sync.Mutex
	startOrder []string
}

func (f *fakeRunner) Preflight(spec jobgrid.Spec) error {
	if f.preflightErr != nil {
		return f.preflightErr(spec)
	}
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, spec jobgrid.Spec, _ time.Duration) ledger.Result {
	cur := f.current.Add(1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.current.Add(-1)

	f.mu.Lock()
	f.startOrder = append(f.startOrder, spec.ID())
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ledger.Result{Spec: spec, Status: ledger.StatusCancelled, ExitCode: ledger.TimeoutExitCode, Err: ctx.Err()}
	}

	status := ledger.StatusSucceeded
	if f.status != nil {
		status = f.status(spec)
	}
	res := ledger.Result{Spec: spec, Status: status, Duration: f.delay}
	if status == ledger.StatusFailed {
		res.ExitCode = 1
	}
	return res
}

func buildSpecs(t *testing.T, maxK, reps int) []jobgrid.Spec {
	t.Helper()
	specs, err := jobgrid.Build(jobgrid.Params{
		Program:    jobgrid.ProgramStructure,
		BinaryPath: "/opt/bin/structure",
		InputFile:  "/data/input.str",
		OutputDir:  t.TempDir(),
		MinK:       1,
		MaxK:       maxK,
		Replicates: reps,
		Seed:       7,
	})
	require.NoError(t, err)
	return specs
}

func TestPool_RunAllSucceed(t *testing.T) {
	specs := buildSpecs(t, 3, 2)
	runner := &fakeRunner{delay: 5 * time.Millisecond}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	var mu sync.Mutex
	calls := make(map[string]int)
	summary, err := pool.Run(context.Background(), specs, func(r ledger.Result) {
		mu.Lock()
		calls[r.Spec.ID()]++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Len(t, summary.Snapshot.Results, 6)
	assert.True(t, summary.Snapshot.AllSucceeded())
	assert.False(t, summary.Cancelled)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))

	// Completion callback fired exactly once per spec.
	require.Len(t, calls, 6)
	for id, n := range calls {
		assert.Equal(t, 1, n, "callback count for %s", id)
	}
}

func TestPool_ConcurrencyBound(t *testing.T) {
	for _, conc := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			specs := buildSpecs(t, 4, 3)
			runner := &fakeRunner{delay: 10 * time.Millisecond}
			pool := New("batch-1", nil, Config{Concurrency: conc}).WithRunner(runner)

			_, err := pool.Run(context.Background(), specs, nil)
			require.NoError(t, err)
			assert.LessOrEqual(t, runner.maxSeen.Load(), int32(conc))
		})
	}
}

func TestPool_StartsInSubmissionOrder(t *testing.T) {
	specs := buildSpecs(t, 3, 2)
	runner := &fakeRunner{}
	pool := New("batch-1", nil, Config{Concurrency: 1}).WithRunner(runner)

	_, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	require.Len(t, runner.startOrder, len(specs))
	for i, s := range specs {
		assert.Equal(t, s.ID(), runner.startOrder[i], "start position %d", i)
	}
}

func TestPool_FailuresDoNotAbortBatch(t *testing.T) {
	specs := buildSpecs(t, 4, 1)
	runner := &fakeRunner{
		status: func(spec jobgrid.Spec) ledger.Status {
			if spec.K%2 == 0 {
				return ledger.StatusFailed
			}
			return ledger.StatusSucceeded
		},
	}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	summary, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	counts := summary.Snapshot.CountByStatus()
	assert.Equal(t, 2, counts[ledger.StatusSucceeded])
	assert.Equal(t, 2, counts[ledger.StatusFailed])
}

func TestPool_PreflightFailureNeverTakesSlot(t *testing.T) {
	specs := buildSpecs(t, 5, 1)
	runner := &fakeRunner{
		preflightErr: func(jobgrid.Spec) error {
			return fmt.Errorf("binary not found")
		},
	}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	summary, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	// No job ever ran, so no slot was ever occupied.
	assert.Equal(t, int32(0), runner.maxSeen.Load())

	counts := summary.Snapshot.CountByStatus()
	assert.Equal(t, 5, counts[ledger.StatusCrashed])
	for _, r := range summary.Snapshot.Results {
		assert.Error(t, r.Err)
	}
}

func TestPool_PreflightFailureNeverCountsInFlight(t *testing.T) {
	specs := buildSpecs(t, 200, 1)
	runner := &fakeRunner{
		preflightErr: func(jobgrid.Spec) error {
			return fmt.Errorf("binary not found")
		},
	}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	// Poll live progress while the batch runs; launch-failed jobs go
	// straight from pending to completed, so the in-flight count must stay
	// within the concurrency bound throughout.
	done := make(chan struct{})
	var maxInFlight atomic.Int32
	go func() {
		defer close(done)
		for {
			p := pool.Progress()
			for {
				max := maxInFlight.Load()
				if int32(p.InFlight) <= max || maxInFlight.CompareAndSwap(max, int32(p.InFlight)) {
					break
				}
			}
			if p.Total > 0 && p.Completed == p.Total {
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	summary, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)
	<-done

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	assert.Equal(t, 200, summary.Snapshot.CountByStatus()[ledger.StatusCrashed])
	assert.Equal(t, ledger.Progress{Total: 200, Completed: 200}, pool.Progress())
}

func TestPool_MixedPreflightFailuresKeepBound(t *testing.T) {
	specs := buildSpecs(t, 6, 1)
	runner := &fakeRunner{
		delay: 10 * time.Millisecond,
		preflightErr: func(spec jobgrid.Spec) error {
			if spec.K%2 == 0 {
				return fmt.Errorf("working directory missing")
			}
			return nil
		},
	}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	summary, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))
	counts := summary.Snapshot.CountByStatus()
	assert.Equal(t, 3, counts[ledger.StatusCrashed])
	assert.Equal(t, 3, counts[ledger.StatusSucceeded])
}

func TestPool_Cancellation(t *testing.T) {
	specs := buildSpecs(t, 10, 1)
	runner := &fakeRunner{delay: 5 * time.Second}
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(runner)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let a couple of jobs start, then pull the plug.
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	summary, err := pool.Run(ctx, specs, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation should not wait for job delays")

	assert.True(t, summary.Cancelled)
	require.Len(t, summary.Snapshot.Results, 10)

	counts := summary.Snapshot.CountByStatus()
	assert.Equal(t, 10, counts[ledger.StatusCancelled])
	assert.Equal(t, ledger.Progress{Total: 10, Completed: 10}, pool.Progress())
}

func TestPool_ProgressAfterRun(t *testing.T) {
	pool := New("batch-1", nil, Config{Concurrency: 2}).WithRunner(&fakeRunner{})
	assert.Equal(t, ledger.Progress{}, pool.Progress())

	specs := buildSpecs(t, 2, 2)
	_, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	assert.Equal(t, ledger.Progress{Total: 4, Completed: 4}, pool.Progress())
}

func TestPool_EmitsEvents(t *testing.T) {
	specs := buildSpecs(t, 2, 1)
	var buf threadSafeBuffer
	w := events.NewJSONLWriter(&buf, "batch-1", "structure")
	pool := New("batch-1", w, Config{Concurrency: 2}).WithRunner(&fakeRunner{})

	_, err := pool.Run(context.Background(), specs, nil)
	require.NoError(t, err)

	var jobRecords, summaryRecords int
	transitions := make(map[string]int)
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		var rec events.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		switch rec.Type {
		case events.TypeJob:
			jobRecords++
			var job events.JobRecord
			require.NoError(t, json.Unmarshal(rec.Data, &job))
			transitions[job.Transition]++
		case events.TypeSummary:
			summaryRecords++
		}
	}

	// submitted + started + completed per job, one summary per batch.
	assert.Equal(t, 6, jobRecords)
	assert.Equal(t, 2, transitions[events.TransitionSubmitted])
	assert.Equal(t, 2, transitions[events.TransitionStarted])
	assert.Equal(t, 2, transitions[events.TransitionCompleted])
	assert.Equal(t, 1, summaryRecords)
}

func TestPool_DuplicateSpecsAreBatchFatal(t *testing.T) {
	specs := buildSpecs(t, 1, 1)
	pool := New("batch-1", nil, Config{Concurrency: 1}).WithRunner(&fakeRunner{})

	_, err := pool.Run(context.Background(), []jobgrid.Spec{specs[0], specs[0]}, nil)
	require.ErrorIs(t, err, ledger.ErrDuplicateSpec)
}

// threadSafeBuffer guards a bytes.Buffer for concurrent writers.
type threadSafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *threadSafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *threadSafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
