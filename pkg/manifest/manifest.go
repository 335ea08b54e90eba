// Package manifest provides loading and validation of batch manifests.
//
// A batch manifest is a YAML or JSON file that configures one run: the
// external program and its inputs, the K × replicate grid, and execution
// behavior. Flags on the run command override individual manifest values.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	run:
//	  program: structure
//	  binary: /opt/structure/bin/structure
//	  input: /data/input.str
//	  output_dir: /data/results
//	grid:
//	  min_k: 1
//	  max_k: 6
//	  replicates: 20
//	  seed: 1234
//	execution:
//	  threads: 4
//	  timeout: 4h
package manifest

import (
	"time"

	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
)

// Defaults for optional manifest fields.
const (
	DefaultVersion    = "1.0"
	DefaultThreads    = 4
	DefaultReplicates = 1
	DefaultMinK       = 1
)

// Manifest represents a validated batch manifest.
type Manifest struct {
	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Run configures the external program invocation.
	Run RunConfig `json:"run" yaml:"run"`

	// Grid configures the K × replicate parameter sweep.
	Grid GridConfig `json:"grid" yaml:"grid"`

	// Execution configures scheduling behavior (optional).
	Execution ExecutionConfig `json:"execution,omitempty" yaml:"execution,omitempty"`

	// Output configures event output (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// RunConfig configures the external program and its files.
type RunConfig struct {
	// Program selects the binary convention: "structure" or "faststructure".
	Program string `json:"program" yaml:"program"`

	// Binary is the path of the external binary to invoke.
	Binary string `json:"binary" yaml:"binary"`

	// Input is the genotype input file.
	Input string `json:"input" yaml:"input"`

	// OutputDir receives per-run output files and logs.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// WorkDir is the working directory for STRUCTURE runs (must hold
	// mainparams/extraparams). Optional; defaults to OutputDir.
	WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`
}

// GridConfig configures the parameter sweep.
type GridConfig struct {
	// MinK and MaxK bound the K sweep, inclusive.
	MinK int `json:"min_k" yaml:"min_k"`
	MaxK int `json:"max_k" yaml:"max_k"`

	// Replicates is the replicate count per K. Forced to 1 for
	// fastStructure by the grid builder. Default: 1
	Replicates int `json:"replicates,omitempty" yaml:"replicates,omitempty"`

	// Seed is the base random seed for per-cell seed derivation.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ExecutionConfig configures scheduling behavior.
type ExecutionConfig struct {
	// Threads is the maximum number of simultaneous external processes.
	// Default: 4
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`

	// Timeout bounds each job's wall time, as a Go duration string
	// (e.g. "90m", "4h"). Empty means unbounded.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// LaunchRate is the maximum process launches per second.
	// Zero means unlimited.
	LaunchRate float64 `json:"launch_rate,omitempty" yaml:"launch_rate,omitempty"`
}

// OutputConfig configures event output.
type OutputConfig struct {
	// Events is the JSONL event destination: "stdout", empty (disabled),
	// or a file path.
	Events string `json:"events,omitempty" yaml:"events,omitempty"`
}

// ApplyDefaults fills in default values for optional fields.
//
// This should be called after loading and validating the manifest so
// callers don't need to reason about zero values.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	if m.Grid.MinK == 0 {
		m.Grid.MinK = DefaultMinK
	}
	if m.Grid.Replicates == 0 {
		m.Grid.Replicates = DefaultReplicates
	}
	if m.Execution.Threads == 0 {
		m.Execution.Threads = DefaultThreads
	}
}

// Timeout returns the parsed per-job timeout, or zero when unset.
// Validate has already checked that the string parses.
func (m *Manifest) Timeout() time.Duration {
	if m.Execution.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(m.Execution.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GridParams maps the manifest onto grid builder parameters.
func (m *Manifest) GridParams() jobgrid.Params {
	return jobgrid.Params{
		Program:    jobgrid.Program(m.Run.Program),
		BinaryPath: m.Run.Binary,
		InputFile:  m.Run.Input,
		OutputDir:  m.Run.OutputDir,
		MinK:       m.Grid.MinK,
		MaxK:       m.Grid.MaxK,
		Replicates: m.Grid.Replicates,
		Seed:       m.Grid.Seed,
		WorkDir:    m.Run.WorkDir,
	}
}
