// Package scheduler executes a batch of job specs against external
// binaries with bounded parallelism.
//
// The pool starts jobs in submission order, keeps at most Concurrency
// external processes alive at any instant, isolates failures per job, and
// reports every terminal outcome exactly once. Per-job failures (non-zero
// exit, timeout, launch failure) never abort the batch; only ledger
// invariant violations do, since those mean the accounting itself is
// broken.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rohankumardubey/Structure-threader/pkg/events"
	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

// Config configures pool behavior.
type Config struct {
	// Concurrency is the maximum number of external processes running
	// simultaneously. Default: 4
	Concurrency int

	// Timeout bounds each job's wall time. A job still running past it is
	// killed and recorded TimedOut. Zero means unbounded.
	Timeout time.Duration

	// LaunchRate is the maximum process launches per second. Staggering
	// launches keeps many STRUCTURE runs from hammering a shared
	// filesystem at once. Zero means unlimited.
	LaunchRate float64
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     0,
		LaunchRate:  0,
	}
}

// Summary is the aggregate outcome of one batch run.
type Summary struct {
	// Snapshot holds one result per submitted spec, in submission order.
	Snapshot *ledger.Snapshot

	// Duration is the total wall time of the batch.
	Duration time.Duration

	// Cancelled reports whether the batch was cut short by cancellation.
	Cancelled bool
}

// Pool executes job specs with bounded parallelism.
//
// Pool is safe for single use only. Create a new Pool for each batch.
type Pool struct {
	runner  Runner
	events  events.Writer
	logger  *zap.Logger
	config  Config
	batchID string

	led atomic.Pointer[ledger.Ledger]

	fatalMu  sync.Mutex
	fatalErr error
}

// New creates a pool for one batch.
//
// Parameters:
//   - batchID: Correlation ID stamped on every event record
//   - ev: Event writer for job-state transitions (nil means discard)
//   - cfg: Pool configuration (use DefaultConfig() as base)
func New(batchID string, ev events.Writer, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if ev == nil {
		ev = events.NopWriter{}
	}
	return &Pool{
		runner:  execRunner{},
		events:  ev,
		logger:  zap.NewNop(),
		config:  cfg,
		batchID: batchID,
	}
}

// WithRunner replaces the process runner. Returns the pool for chaining.
func (p *Pool) WithRunner(r Runner) *Pool {
	p.runner = r
	return p
}

// WithLogger sets the structured logger. Returns the pool for chaining.
func (p *Pool) WithLogger(l *zap.Logger) *Pool {
	p.logger = l
	return p
}

// Progress returns the current batch counters, or the zero value before
// Run has started. Safe to call concurrently with Run.
func (p *Pool) Progress() ledger.Progress {
	if led := p.led.Load(); led != nil {
		return led.Progress()
	}
	return ledger.Progress{}
}

// outcome pairs a terminal result with whether the job ever left pending.
type outcome struct {
	res     ledger.Result
	started bool
}

// Run executes specs and blocks until every job reaches a terminal state.
//
// onResult is invoked exactly once per spec with its result, from a single
// dispatch goroutine, so callbacks never block slot release or other jobs'
// scheduling. onResult may be nil.
//
// Cancelling ctx cancels the whole batch: in-flight processes are killed
// and recorded Cancelled, pending jobs are discarded as Cancelled without
// ever starting. Run still returns a complete summary in that case.
//
// The only errors returned are batch-fatal: a malformed spec collection or
// a ledger invariant violation.
func (p *Pool) Run(ctx context.Context, specs []jobgrid.Spec, onResult func(ledger.Result)) (*Summary, error) {
	start := time.Now()

	led, err := ledger.New(specs)
	if err != nil {
		return nil, err
	}
	p.led.Store(led)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if p.config.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.config.LaunchRate), 1)
	}

	sem := make(chan struct{}, p.config.Concurrency)
	resultCh := make(chan outcome, len(specs))
	var wg sync.WaitGroup

	for _, spec := range specs {
		p.emitJob(spec, events.TransitionSubmitted, nil)
	}

	// Single dispatch goroutine: serializes ledger completion, event
	// emission and the caller's callback, independent of slot release.
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for o := range resultCh {
			id := o.res.Spec.ID()
			var lerr error
			switch {
			case o.started:
				lerr = led.RecordCompletion(id, o.res)
			case o.res.Status == ledger.StatusCrashed:
				lerr = led.RecordCrashed(id, o.res)
			default:
				lerr = led.RecordCancelled(id, o.res)
			}
			if lerr != nil {
				p.setFatal(lerr)
				cancel()
				continue
			}
			p.logger.Info("job completed",
				zap.String("job_id", id),
				zap.String("status", string(o.res.Status)),
				zap.Int("exit_code", o.res.ExitCode),
				zap.Duration("duration", o.res.Duration))
			p.emitJob(o.res.Spec, events.TransitionCompleted, &o.res)
			if onResult != nil {
				onResult(o.res)
			}
		}
	}()

	for _, spec := range specs {
		if runCtx.Err() != nil {
			resultCh <- outcome{res: cancelledResult(spec), started: false}
			continue
		}

		// Launch preconditions are checked before a slot is taken: a job
		// that can never start must not occupy concurrency, and must not
		// count as in-flight either.
		if perr := p.runner.Preflight(spec); perr != nil {
			p.logger.Warn("job launch failed",
				zap.String("job_id", spec.ID()),
				zap.Error(perr))
			resultCh <- outcome{res: crashedResult(spec, perr), started: false}
			continue
		}

		if limiter != nil {
			if werr := limiter.Wait(runCtx); werr != nil {
				resultCh <- outcome{res: cancelledResult(spec), started: false}
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			resultCh <- outcome{res: cancelledResult(spec), started: false}
			continue
		}

		if lerr := led.RecordStart(spec.ID()); lerr != nil {
			<-sem
			p.setFatal(lerr)
			cancel()
			resultCh <- outcome{res: cancelledResult(spec), started: false}
			continue
		}

		wg.Add(1)
		go func(spec jobgrid.Spec) {
			defer wg.Done()
			defer func() { <-sem }()

			p.logger.Info("job started",
				zap.String("job_id", spec.ID()),
				zap.Int("k", spec.K),
				zap.Int("replicate", spec.Replicate))
			p.emitJob(spec, events.TransitionStarted, nil)

			res := p.runner.Run(runCtx, spec, p.config.Timeout)
			resultCh <- outcome{res: res, started: true}
		}(spec)
	}

	wg.Wait()
	close(resultCh)
	<-dispatchDone

	if ferr := p.fatal(); ferr != nil {
		return nil, ferr
	}

	snap, err := led.Snapshot()
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Snapshot:  snap,
		Duration:  time.Since(start),
		Cancelled: ctx.Err() != nil,
	}
	p.emitSummary(summary)
	return summary, nil
}

func (p *Pool) setFatal(err error) {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
}

func (p *Pool) fatal() error {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	return p.fatalErr
}

// emitJob writes a job transition record. Best effort: event output must
// never block or fail scheduling.
func (p *Pool) emitJob(spec jobgrid.Spec, transition string, res *ledger.Result) {
	rec := &events.JobRecord{
		JobID:      spec.ID(),
		K:          spec.K,
		Replicate:  spec.Replicate,
		Transition: transition,
		LogPath:    spec.LogPath,
	}
	if res != nil {
		rec.Status = string(res.Status)
		code := res.ExitCode
		rec.ExitCode = &code
		rec.DurationMs = res.Duration.Milliseconds()
	}
	if err := p.events.WriteJob(context.Background(), rec); err != nil {
		p.logger.Debug("failed to emit job event", zap.Error(err))
	}
}

func (p *Pool) emitSummary(s *Summary) {
	byStatus := make(map[string]int)
	for status, n := range s.Snapshot.CountByStatus() {
		byStatus[string(status)] = n
	}
	rec := &events.SummaryRecord{
		Total:         len(s.Snapshot.Results),
		ByStatus:      byStatus,
		Duration:      s.Duration,
		DurationHuman: s.Duration.Round(time.Millisecond).String(),
		Cancelled:     s.Cancelled,
	}
	if err := p.events.WriteSummary(context.Background(), rec); err != nil {
		p.logger.Debug("failed to emit summary event", zap.Error(err))
	}
}

func cancelledResult(spec jobgrid.Spec) ledger.Result {
	return ledger.Result{
		Spec:     spec,
		Status:   ledger.StatusCancelled,
		ExitCode: ledger.TimeoutExitCode,
	}
}

func crashedResult(spec jobgrid.Spec, err error) ledger.Result {
	return ledger.Result{
		Spec:     spec,
		Status:   ledger.StatusCrashed,
		ExitCode: ledger.TimeoutExitCode,
		Err:      err,
	}
}
