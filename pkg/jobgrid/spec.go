package jobgrid

import "fmt"

// Program identifies which external inference binary a job runs.
type Program string

const (
	// ProgramStructure is the classic STRUCTURE binary. Supports replicates
	// and requires mainparams/extraparams in the working directory.
	ProgramStructure Program = "structure"

	// ProgramFastStructure is the fastStructure binary. Has no native
	// replicate concept; the builder forces one replicate per K.
	ProgramFastStructure Program = "faststructure"
)

// Valid reports whether p is one of the supported programs.
func (p Program) Valid() bool {
	return p == ProgramStructure || p == ProgramFastStructure
}

// Spec describes one unit of work: a single external run for one
// (program, K, replicate) cell of the batch grid.
//
// A Spec is immutable once built. The (Program, K, Replicate) triple is
// unique within a batch and serves as the job identifier everywhere
// downstream (ledger keys, event records, log naming).
type Spec struct {
	// Program selects the external binary convention.
	Program Program

	// K is the hypothesized number of ancestral populations (>= 1).
	K int

	// Replicate is the 1-based replicate number. Always 1 for fastStructure.
	Replicate int

	// CommandLine is the fully resolved invocation: binary path first,
	// then the program-specific argument tokens.
	CommandLine []string

	// WorkDir is the directory the process runs in. STRUCTURE reads its
	// mainparams/extraparams files from here; fastStructure ignores it.
	WorkDir string

	// LogPath is where the run's combined stdout/stderr is written.
	LogPath string
}

// ID returns the stable job identifier, e.g. "structure_K3_rep2".
func (s Spec) ID() string {
	return fmt.Sprintf("%s_K%d_rep%d", s.Program, s.K, s.Replicate)
}
