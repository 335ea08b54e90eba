// Package ledger maintains the authoritative pending/in-flight/completed
// accounting for one batch of jobs.
//
// The ledger is the single shared-mutable-state boundary in the run engine:
// every mutation is serialized under one mutex so the partition invariant
// (pending, in-flight and completed are disjoint and together cover the
// whole batch) holds at all times. Jobs move monotonically
// pending → in-flight → completed; a cancelled or launch-failed pending job
// skips straight to completed without ever starting. No job re-enters an
// earlier state.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
)

var (
	// ErrState indicates a transition that violates the ledger invariant.
	// This signals a scheduler bug, not a user-facing condition: the
	// accounting is no longer trustworthy and the batch should abort.
	ErrState = errors.New("ledger state violation")

	// ErrNotReady indicates Snapshot was called before the batch reached
	// completion.
	ErrNotReady = errors.New("batch not complete")

	// ErrDuplicateSpec indicates the spec collection handed to New
	// contains two specs with the same identifier.
	ErrDuplicateSpec = errors.New("duplicate spec id")
)

// Ledger tracks one batch. Safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	order     []string
	pending   map[string]jobgrid.Spec
	inFlight  map[string]time.Time
	completed map[string]Result
}

// Progress is a point-in-time view of the batch counters.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
}

// New builds a ledger with every spec pending.
func New(specs []jobgrid.Spec) (*Ledger, error) {
	l := &Ledger{
		order:     make([]string, 0, len(specs)),
		pending:   make(map[string]jobgrid.Spec, len(specs)),
		inFlight:  make(map[string]time.Time),
		completed: make(map[string]Result, len(specs)),
	}
	for _, s := range specs {
		id := s.ID()
		if _, ok := l.pending[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSpec, id)
		}
		l.order = append(l.order, id)
		l.pending[id] = s
	}
	return l, nil
}

// RecordStart moves id from pending to in-flight.
func (l *Ledger) RecordStart(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[id]; !ok {
		return fmt.Errorf("%w: start of %s which is not pending", ErrState, id)
	}
	delete(l.pending, id)
	l.inFlight[id] = time.Now()
	return nil
}

// RecordCompletion moves id from in-flight to completed, storing result.
func (l *Ledger) RecordCompletion(id string, result Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.inFlight[id]; !ok {
		return fmt.Errorf("%w: completion of %s which is not in flight", ErrState, id)
	}
	delete(l.inFlight, id)
	l.completed[id] = result
	return nil
}

// RecordCancelled moves a still-pending id straight to completed with a
// Cancelled result. The job is discarded without ever starting, so it never
// passes through the in-flight state.
func (l *Ledger) RecordCancelled(id string, result Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[id]; !ok {
		return fmt.Errorf("%w: cancellation of %s which is not pending", ErrState, id)
	}
	delete(l.pending, id)
	l.completed[id] = result
	return nil
}

// RecordCrashed moves a still-pending id straight to completed with a
// Crashed result. Launch-failed jobs never start a process and must never
// count as in-flight: in-flight size is bounded by the concurrency limit
// and is reported as live progress.
func (l *Ledger) RecordCrashed(id string, result Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[id]; !ok {
		return fmt.Errorf("%w: crash of %s which is not pending", ErrState, id)
	}
	delete(l.pending, id)
	l.completed[id] = result
	return nil
}

// Complete reports whether every job has reached a terminal state.
func (l *Ledger) Complete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) == 0 && len(l.inFlight) == 0
}

// Progress returns the current counters.
func (l *Ledger) Progress() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Progress{
		Total:     len(l.order),
		Pending:   len(l.pending),
		InFlight:  len(l.inFlight),
		Completed: len(l.completed),
	}
}

// Snapshot returns a copy of all results in submission order.
//
// Callable only once the batch is complete; returns ErrNotReady otherwise.
func (l *Ledger) Snapshot() (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) != 0 || len(l.inFlight) != 0 {
		return nil, fmt.Errorf("%w: %d pending, %d in flight", ErrNotReady, len(l.pending), len(l.inFlight))
	}

	results := make([]Result, 0, len(l.completed))
	for _, id := range l.order {
		results = append(results, l.completed[id])
	}
	return &Snapshot{Results: results}, nil
}

// Snapshot is the immutable outcome summary handed to post-processing.
type Snapshot struct {
	Results []Result `json:"results"`
}

// CountByStatus tallies results per terminal status.
func (s *Snapshot) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// AllSucceeded reports whether every job in the snapshot succeeded.
func (s *Snapshot) AllSucceeded() bool {
	for _, r := range s.Results {
		if r.Status != StatusSucceeded {
			return false
		}
	}
	return true
}
