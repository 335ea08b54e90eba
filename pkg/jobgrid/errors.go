package jobgrid

import "errors"

var (
	// ErrInvalidRange indicates a malformed K range (minK > maxK or minK < 1).
	// Fatal to batch construction; no job is built.
	ErrInvalidRange = errors.New("invalid K range")

	// ErrInvalidProgram indicates an unsupported program selection.
	ErrInvalidProgram = errors.New("unsupported program")

	// ErrOutputCollision indicates two grid cells would write the same
	// output prefix or log file. Raised at build time instead of allowing
	// a silent overwrite at run time.
	ErrOutputCollision = errors.New("output path collision")
)
