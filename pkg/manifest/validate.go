package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
)

// ValidationError represents a single validation issue.
type ValidationError struct {
	// Path locates the problematic field (e.g., "run.binary").
	Path string

	// Message describes the validation failure.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Validate checks the manifest for structural problems.
//
// Range validation of the K grid itself belongs to the grid builder;
// Validate only enforces presence, enum membership and parseability.
func (m *Manifest) Validate() error {
	var errs ValidationErrors

	if m.Version != DefaultVersion {
		errs = append(errs, ValidationError{Path: "version", Message: fmt.Sprintf("unsupported version %q (want %q)", m.Version, DefaultVersion)})
	}
	if !jobgrid.Program(m.Run.Program).Valid() {
		errs = append(errs, ValidationError{Path: "run.program", Message: fmt.Sprintf("must be %q or %q", jobgrid.ProgramStructure, jobgrid.ProgramFastStructure)})
	}
	if strings.TrimSpace(m.Run.Binary) == "" {
		errs = append(errs, ValidationError{Path: "run.binary", Message: "is required"})
	}
	if strings.TrimSpace(m.Run.Input) == "" {
		errs = append(errs, ValidationError{Path: "run.input", Message: "is required"})
	}
	if strings.TrimSpace(m.Run.OutputDir) == "" {
		errs = append(errs, ValidationError{Path: "run.output_dir", Message: "is required"})
	}
	if m.Grid.MaxK == 0 {
		errs = append(errs, ValidationError{Path: "grid.max_k", Message: "is required"})
	}
	if m.Execution.Threads < 0 {
		errs = append(errs, ValidationError{Path: "execution.threads", Message: "must be positive"})
	}
	if m.Execution.LaunchRate < 0 {
		errs = append(errs, ValidationError{Path: "execution.launch_rate", Message: "must not be negative"})
	}
	if m.Execution.Timeout != "" {
		if _, err := time.ParseDuration(m.Execution.Timeout); err != nil {
			errs = append(errs, ValidationError{Path: "execution.timeout", Message: fmt.Sprintf("invalid duration: %v", err)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
