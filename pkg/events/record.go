// Package events provides JSONL output for batch run events.
//
// Each job-state transition, the final batch summary, and the
// post-processing report are emitted as typed record envelopes, one
// self-contained JSON object per line. Emission is best-effort: the run
// engine never blocks on, or fails because of, event output.
package events

import (
	"encoding/json"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: stthreader.<type>.v<version>
const (
	// TypeJob identifies job-state transition records.
	TypeJob = "stthreader.job.v1"

	// TypeSummary identifies final batch summary records.
	TypeSummary = "stthreader.summary.v1"

	// TypeReport identifies post-processing report records.
	TypeReport = "stthreader.report.v1"
)

// Transition names for job records.
const (
	TransitionSubmitted = "submitted"
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "stthreader.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// BatchID is the correlation ID for this batch.
	BatchID string `json:"batch_id"`

	// Program identifies the external binary ("structure", "faststructure").
	Program string `json:"program"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for a job-state transition.
type JobRecord struct {
	// JobID is the stable job identifier, e.g. "structure_K3_rep2".
	JobID string `json:"job_id"`

	// K and Replicate locate the job in the batch grid.
	K         int `json:"k"`
	Replicate int `json:"replicate"`

	// Transition is one of submitted, started, completed.
	Transition string `json:"transition"`

	// Status is the terminal status, set only on completed transitions.
	Status string `json:"status,omitempty"`

	// ExitCode is the process exit code, set only on completed transitions.
	ExitCode *int `json:"exit_code,omitempty"`

	// DurationMs is the elapsed wall time, set only on completed transitions.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// LogPath is where the run's captured output lives.
	LogPath string `json:"log_path,omitempty"`
}

// SummaryRecord is the data payload for the final batch summary.
type SummaryRecord struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	Duration      time.Duration  `json:"duration"`
	DurationHuman string         `json:"duration_human"`
	Cancelled     bool           `json:"cancelled"`
}

// ReportRecord is the data payload for one job's post-processing entry.
type ReportRecord struct {
	JobID       string   `json:"job_id"`
	K           int      `json:"k"`
	Replicate   int      `json:"replicate"`
	Status      string   `json:"status"`
	ExitCode    int      `json:"exit_code"`
	DurationMs  int64    `json:"duration_ms"`
	LogPath     string   `json:"log_path,omitempty"`
	OutputFiles []string `json:"output_files,omitempty"`
}
