// Package cmd implements the structure_threader CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rohankumardubey/Structure-threader/internal/config"
	"github.com/rohankumardubey/Structure-threader/internal/observability"
)

var (
	rootLogLevel string

	// appConfig is populated before any command runs. Commands treat it
	// as read-only defaults; flags and manifests override it.
	appConfig *config.Config
)

// versionInfo holds build-time version metadata, injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "structure_threader",
	Short: "Parallelize runs of STRUCTURE and fastStructure",
	Long: `structure_threader coordinates many independent runs of the STRUCTURE or
fastStructure population-genetics binaries across a K × replicate grid,
bounding concurrency to a configured thread count, capturing each run's
output, and producing a complete per-job outcome report once the batch
finishes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		appConfig = cfg

		level := cfg.Logging.Level
		if rootLogLevel != "" {
			level = rootLogLevel
		}
		return observability.Init(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
}

// Execute runs the CLI with the given context. Cancelling the context
// cancels any in-flight batch.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}
