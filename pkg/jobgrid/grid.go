// Package jobgrid expands a requested parameter space (K range × replicate
// count × program) into the ordered collection of job specs that the
// scheduler executes.
//
// Ordering is part of the contract: specs are emitted K-major,
// replicate-minor (all replicates of K=1 before any of K=2). Downstream log
// naming and progress reporting assume this order.
package jobgrid

import (
	"fmt"
	"path/filepath"
)

// Params is the input to Build.
type Params struct {
	// Program selects the external binary convention.
	Program Program

	// BinaryPath is the path of the external binary to invoke.
	BinaryPath string

	// InputFile is the genotype input file passed to the binary.
	InputFile string

	// OutputDir is the directory that receives per-run output files
	// and per-run logs.
	OutputDir string

	// MinK and MaxK bound the K sweep, inclusive. MinK must be >= 1 and
	// <= MaxK.
	MinK int
	MaxK int

	// Replicates is the requested replicate count per K. Must be >= 1.
	// For fastStructure the effective count is forced to 1 regardless of
	// this value: fastStructure has no native replicate concept, so extra
	// replicates would only overwrite each other's output. This override
	// is intentional, not a silent divergence.
	Replicates int

	// Seed is the base random seed. Each (K, replicate) cell derives a
	// distinct deterministic seed from it so replicates actually differ.
	Seed int64

	// WorkDir is the working directory for STRUCTURE runs (must hold the
	// mainparams/extraparams files). Empty means the output directory.
	WorkDir string
}

// EffectiveReplicates returns the replicate count Build will actually use.
func (p Params) EffectiveReplicates() int {
	if p.Program == ProgramFastStructure {
		return 1
	}
	return p.Replicates
}

// Build expands params into the full ordered spec collection, one spec per
// (K, replicate) cell.
//
// Returns ErrInvalidRange when minK > maxK or minK < 1, ErrInvalidProgram
// for an unknown program, and ErrOutputCollision when two cells would write
// the same output prefix or log file.
func Build(params Params) ([]Spec, error) {
	if !params.Program.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProgram, params.Program)
	}
	if params.MinK < 1 {
		return nil, fmt.Errorf("%w: minK %d < 1", ErrInvalidRange, params.MinK)
	}
	if params.MinK > params.MaxK {
		return nil, fmt.Errorf("%w: minK %d > maxK %d", ErrInvalidRange, params.MinK, params.MaxK)
	}
	if params.Replicates < 1 {
		return nil, fmt.Errorf("%w: replicates %d < 1", ErrInvalidRange, params.Replicates)
	}

	workDir := params.WorkDir
	if workDir == "" {
		workDir = params.OutputDir
	}

	reps := params.EffectiveReplicates()
	specs := make([]Spec, 0, (params.MaxK-params.MinK+1)*reps)

	// fastStructure writes K-suffixed files under one shared prefix, so the
	// same prefix across K values is expected there. Collisions are keyed on
	// (prefix, K) to catch genuine overwrites for both programs.
	seenOutputs := make(map[string]string)
	seenLogs := make(map[string]string)

	for k := params.MinK; k <= params.MaxK; k++ {
		for rep := 1; rep <= reps; rep++ {
			spec := Spec{
				Program:   params.Program,
				K:         k,
				Replicate: rep,
				WorkDir:   workDir,
				LogPath:   filepath.Join(params.OutputDir, fmt.Sprintf("K%d_rep%d.stlog", k, rep)),
			}

			cli, outPrefix := commandLine(params, k, rep)
			spec.CommandLine = cli

			outKey := fmt.Sprintf("%s|K%d", outPrefix, k)
			if prev, ok := seenOutputs[outKey]; ok {
				return nil, fmt.Errorf("%w: %s and %s both write %s", ErrOutputCollision, prev, spec.ID(), outPrefix)
			}
			seenOutputs[outKey] = spec.ID()

			if prev, ok := seenLogs[spec.LogPath]; ok {
				return nil, fmt.Errorf("%w: %s and %s both log to %s", ErrOutputCollision, prev, spec.ID(), spec.LogPath)
			}
			seenLogs[spec.LogPath] = spec.ID()

			specs = append(specs, spec)
		}
	}

	return specs, nil
}
