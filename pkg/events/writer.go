package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("events writer is closed")

// WriteError wraps a failed write with the operation that failed.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("events write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer outputs JSONL records for batch run events.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a single line
// of JSON followed by a newline.
type Writer interface {
	// WriteJob emits a job-state transition record.
	WriteJob(ctx context.Context, job *JobRecord) error

	// WriteSummary emits the final batch summary record.
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// WriteReport emits a post-processing report record.
	WriteReport(ctx context.Context, rep *ReportRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using a
// mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w       io.Writer
	batchID string
	program string
	mu      sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer.
//
// Parameters:
//   - w: The underlying writer (stdout, file, etc.)
//   - batchID: Correlation ID for this batch
//   - program: External binary identifier (e.g., "structure")
func NewJSONLWriter(w io.Writer, batchID, program string) *JSONLWriter {
	return &JSONLWriter{
		w:       w,
		batchID: batchID,
		program: program,
	}
}

// WriteJob emits a job-state transition record.
func (jw *JSONLWriter) WriteJob(ctx context.Context, job *JobRecord) error {
	return jw.writeRecord(ctx, TypeJob, job)
}

// WriteSummary emits the final batch summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// WriteReport emits a post-processing report record.
func (jw *JSONLWriter) WriteReport(ctx context.Context, rep *ReportRecord) error {
	return jw.writeRecord(ctx, TypeReport, rep)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire operation to ensure atomic
// line writes.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the data payload first (outside the lock for better concurrency)
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:    recordType,
		TS:      time.Now().UTC(),
		BatchID: jw.batchID,
		Program: jw.program,
		Data:    dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// Handle short writes: io.Writer is allowed to return n < len(p) with
	// nil error, which would silently truncate JSONL lines.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// NopWriter discards all records. Used when event output is disabled so
// callers never need a nil check.
type NopWriter struct{}

func (NopWriter) WriteJob(context.Context, *JobRecord) error         { return nil }
func (NopWriter) WriteSummary(context.Context, *SummaryRecord) error { return nil }
func (NopWriter) WriteReport(context.Context, *ReportRecord) error   { return nil }
func (NopWriter) Close() error                                       { return nil }
