package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
)

// Runner launches and supervises one external process per job.
//
// The seam exists so the pool's coordination logic is testable without
// real binaries; production code always uses the os/exec implementation.
type Runner interface {
	// Preflight checks launch preconditions without starting a process:
	// the binary is resolvable and the working directory exists. A
	// preflight failure maps to a Crashed result and must be detectable
	// before the job takes a concurrency slot.
	Preflight(spec jobgrid.Spec) error

	// Run launches the spec's command, captures combined stdout/stderr to
	// spec.LogPath, and blocks until the process exits, the timeout
	// elapses, or ctx is cancelled. It always returns a terminal result.
	Run(ctx context.Context, spec jobgrid.Spec, timeout time.Duration) ledger.Result
}

// execRunner supervises real external processes via os/exec.
type execRunner struct{}

func (execRunner) Preflight(spec jobgrid.Spec) error {
	if len(spec.CommandLine) == 0 {
		return errors.New("empty command line")
	}

	binary := spec.CommandLine[0]
	if strings.ContainsRune(binary, os.PathSeparator) {
		info, err := os.Stat(binary)
		if err != nil {
			return fmt.Errorf("binary not found: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("binary path is a directory: %s", binary)
		}
	} else if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("binary not in PATH: %w", err)
	}

	if spec.WorkDir != "" {
		info, err := os.Stat(spec.WorkDir)
		if err != nil {
			return fmt.Errorf("working directory unavailable: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory is not a directory: %s", spec.WorkDir)
		}
	}

	return nil
}

func (execRunner) Run(ctx context.Context, spec jobgrid.Spec, timeout time.Duration) ledger.Result {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
		return crashedResult(spec, fmt.Errorf("create log directory: %w", err))
	}
	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return crashedResult(spec, fmt.Errorf("create log file: %w", err))
	}
	defer func() { _ = logFile.Close() }()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.CommandLine[0], spec.CommandLine[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		res := crashedResult(spec, fmt.Errorf("start process: %w", err))
		res.Duration = time.Since(start)
		return res
	}

	waitErr := cmd.Wait()

	res := ledger.Result{
		Spec:     spec,
		Duration: time.Since(start),
	}
	res.Status, res.ExitCode, res.Err = classifyExit(ctx.Err(), runCtx.Err(), waitErr)
	return res
}

// classifyExit maps a finished wait to a terminal status.
//
// A clean exit wins over a concurrent cancellation or deadline: if the
// process exited 0 before the kill landed, the job succeeded. Only when the
// wait itself failed do the cancellation and timeout causes apply.
func classifyExit(ctxErr, runErr, waitErr error) (ledger.Status, int, error) {
	switch {
	case waitErr == nil:
		return ledger.StatusSucceeded, 0, nil
	case ctxErr != nil:
		// Whole-batch cancellation observed mid-wait; the process was
		// killed by CommandContext.
		return ledger.StatusCancelled, ledger.TimeoutExitCode, ctxErr
	case errors.Is(runErr, context.DeadlineExceeded):
		return ledger.StatusTimedOut, ledger.TimeoutExitCode, runErr
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return ledger.StatusFailed, exitErr.ExitCode(), nil
	}
	return ledger.StatusCrashed, ledger.TimeoutExitCode, waitErr
}
