package jobgrid

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// commandLine resolves the program-specific invocation for one grid cell.
// It returns the argument vector and the output prefix the run writes under.
func commandLine(params Params, k, rep int) ([]string, string) {
	switch params.Program {
	case ProgramFastStructure:
		return fastStructureCLI(params, k)
	default:
		return structureCLI(params, k, rep)
	}
}

// structureCLI builds a STRUCTURE invocation. Output files are prefixed
// str_K<k>_rep<r> under the output directory, and each cell gets its own
// derived seed via -D so replicates are independent runs.
func structureCLI(params Params, k, rep int) ([]string, string) {
	outPrefix := filepath.Join(params.OutputDir, fmt.Sprintf("str_K%d_rep%d", k, rep))
	cli := []string{
		params.BinaryPath,
		"-K", strconv.Itoa(k),
		"-i", params.InputFile,
		"-o", outPrefix,
		"-D", strconv.FormatInt(deriveSeed(params, k, rep), 10),
	}
	return cli, outPrefix
}

// fastStructureCLI builds a fastStructure invocation. All K values share the
// fS_run_K output prefix; fastStructure suffixes its own files with the K
// value. The input prefix is the genotype file stripped of its extension,
// which is what fastStructure expects.
func fastStructureCLI(params Params, k int) ([]string, string) {
	outPrefix := filepath.Join(params.OutputDir, "fS_run_K")
	cli := []string{
		params.BinaryPath,
		"-K", strconv.Itoa(k),
		"--input=" + inputPrefix(params.InputFile),
		"--output=" + outPrefix,
		"--seed=" + strconv.FormatInt(deriveSeed(params, k, 1), 10),
	}
	return cli, outPrefix
}

// inputPrefix strips the genotype file extensions fastStructure recognizes.
func inputPrefix(path string) string {
	for _, ext := range []string{".str", ".bed", ".fam", ".bim"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// deriveSeed maps the base seed and a grid cell to a distinct deterministic
// seed, so a batch is reproducible while replicates still differ.
func deriveSeed(params Params, k, rep int) int64 {
	cell := int64(k-params.MinK)*int64(params.EffectiveReplicates()) + int64(rep-1)
	return params.Seed + cell
}
