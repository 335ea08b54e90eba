package cmd

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rohankumardubey/Structure-threader/internal/observability"
	"github.com/rohankumardubey/Structure-threader/internal/server"
	"github.com/rohankumardubey/Structure-threader/pkg/events"
	"github.com/rohankumardubey/Structure-threader/pkg/gate"
	"github.com/rohankumardubey/Structure-threader/pkg/jobgrid"
	"github.com/rohankumardubey/Structure-threader/pkg/ledger"
	"github.com/rohankumardubey/Structure-threader/pkg/manifest"
	"github.com/rohankumardubey/Structure-threader/pkg/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of STRUCTURE or fastStructure jobs",
	Long: `Run the full K × replicate grid for the selected program with bounded
parallelism. The batch is described either by flags or by a YAML/JSON
manifest; flags override manifest values.

Examples:
  structure_threader run --program structure --binary /opt/bin/structure \
      --input data.str --output results/ --max-k 6 --replicates 20 --threads 4
  structure_threader run --job batch.yaml
  structure_threader run --job batch.yaml --plan
  structure_threader run --job batch.yaml --status-addr localhost:8750`,
	RunE: runRun,
}

var (
	runJobPath    string
	runProgram    string
	runBinary     string
	runInput      string
	runOutput     string
	runWorkDir    string
	runMinK       int
	runMaxK       int
	runReplicates int
	runSeed       int64
	runThreads    int
	runTimeout    time.Duration
	runLaunchRate float64
	runEvents     string
	runStatusAddr string
	runPlan       bool
	runNoReport   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to batch manifest (YAML or JSON; - reads stdin)")
	runCmd.Flags().StringVar(&runProgram, "program", "", "External program (structure|faststructure)")
	runCmd.Flags().StringVar(&runBinary, "binary", "", "Path to the external binary")
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "Genotype input file")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "Working directory for STRUCTURE runs (default: output directory)")
	runCmd.Flags().IntVar(&runMinK, "min-k", 1, "Smallest K to run")
	runCmd.Flags().IntVarP(&runMaxK, "max-k", "K", 0, "Largest K to run")
	runCmd.Flags().IntVarP(&runReplicates, "replicates", "R", 1, "Replicates per K (forced to 1 for fastStructure)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1235813, "Base random seed")
	runCmd.Flags().IntVarP(&runThreads, "threads", "t", 0, "Maximum simultaneous external processes")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-job wall time bound (0 = unbounded)")
	runCmd.Flags().Float64Var(&runLaunchRate, "launch-rate", 0, "Maximum process launches per second (0 = unlimited)")
	runCmd.Flags().StringVar(&runEvents, "events", "", "JSONL event destination (stdout or a file path)")
	runCmd.Flags().StringVar(&runStatusAddr, "status-addr", "", "Serve batch progress over HTTP at host:port")
	runCmd.Flags().BoolVar(&runPlan, "plan", false, "Show the expanded job grid without executing")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "Skip the post-run batch report")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := resolveManifest(cmd)
	if err != nil {
		observability.CLILogger.Error("Invalid batch configuration", zap.Error(err))
		return err
	}

	specs, err := jobgrid.Build(m.GridParams())
	if err != nil {
		observability.CLILogger.Error("Failed to build job grid", zap.Error(err))
		return err
	}

	if runPlan {
		return showRunPlan(m, specs)
	}

	if err := os.MkdirAll(m.Run.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	batchID := uuid.New().String()
	writer, cleanup, err := createEventsWriter(m.Output.Events, batchID, m.Run.Program)
	if err != nil {
		observability.CLILogger.Error("Failed to create event writer", zap.Error(err))
		return err
	}
	defer cleanup()

	pool := scheduler.New(batchID, writer, scheduler.Config{
		Concurrency: m.Execution.Threads,
		Timeout:     m.Timeout(),
		LaunchRate:  m.Execution.LaunchRate,
	}).WithLogger(observability.CLILogger)

	if runStatusAddr != "" {
		srv, err := statusServer(runStatusAddr, batchID, pool)
		if err != nil {
			return err
		}
		go func() {
			if serr := srv.Start(ctx); serr != nil {
				observability.CLILogger.Warn("Status server stopped", zap.Error(serr))
			}
		}()
		observability.CLILogger.Info("Status server listening", zap.String("addr", srv.Addr()))
	}

	observability.CLILogger.Info("Starting batch",
		zap.String("batch_id", batchID),
		zap.String("program", m.Run.Program),
		zap.Int("jobs", len(specs)),
		zap.Int("threads", m.Execution.Threads),
		zap.Duration("timeout", m.Timeout()))

	summary, err := pool.Run(ctx, specs, nil)
	if err != nil {
		observability.CLILogger.Error("Batch aborted", zap.Error(err))
		return err
	}

	var g gate.Gate = gate.NopGate{}
	if !runNoReport {
		g = gate.NewReportGate(writer, os.Stdout).WithLogger(observability.CLILogger)
	}
	if gerr := g.Process(ctx, summary.Snapshot, m.Run.OutputDir); gerr != nil {
		observability.CLILogger.Warn("Failed to write batch report", zap.Error(gerr))
	}

	counts := summary.Snapshot.CountByStatus()
	observability.CLILogger.Info("Batch complete",
		zap.String("batch_id", batchID),
		zap.Duration("duration", summary.Duration),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Int("succeeded", counts[ledger.StatusSucceeded]),
		zap.Int("failed", counts[ledger.StatusFailed]),
		zap.Int("timed_out", counts[ledger.StatusTimedOut]),
		zap.Int("crashed", counts[ledger.StatusCrashed]),
		zap.Int("cancelled_jobs", counts[ledger.StatusCancelled]))

	if !summary.Snapshot.AllSucceeded() {
		failed := len(summary.Snapshot.Results) - counts[ledger.StatusSucceeded]
		return fmt.Errorf("batch finished with %d non-succeeded job(s)", failed)
	}
	return nil
}

// resolveManifest merges manifest file, flags and config defaults into one
// validated manifest. Precedence: flags > manifest file > tool config.
func resolveManifest(cmd *cobra.Command) (*manifest.Manifest, error) {
	var m *manifest.Manifest
	switch runJobPath {
	case "":
		m = &manifest.Manifest{Version: manifest.DefaultVersion}
	case "-":
		loaded, err := manifest.LoadFromReader(cmd.InOrStdin(), "")
		if err != nil {
			return nil, err
		}
		m = loaded
	default:
		loaded, err := manifest.Load(runJobPath)
		if err != nil {
			return nil, err
		}
		m = loaded
	}

	f := cmd.Flags()
	if f.Changed("program") {
		m.Run.Program = runProgram
	}
	if f.Changed("binary") {
		m.Run.Binary = runBinary
	}
	if f.Changed("input") {
		m.Run.Input = runInput
	}
	if f.Changed("output") {
		m.Run.OutputDir = runOutput
	}
	if f.Changed("workdir") {
		m.Run.WorkDir = runWorkDir
	}
	if f.Changed("min-k") || m.Grid.MinK == 0 {
		m.Grid.MinK = runMinK
	}
	if f.Changed("max-k") {
		m.Grid.MaxK = runMaxK
	}
	if f.Changed("replicates") || m.Grid.Replicates == 0 {
		m.Grid.Replicates = runReplicates
	}
	if f.Changed("seed") || m.Grid.Seed == 0 {
		m.Grid.Seed = runSeed
	}
	if f.Changed("threads") {
		m.Execution.Threads = runThreads
	} else if m.Execution.Threads == 0 && appConfig != nil {
		m.Execution.Threads = appConfig.Execution.Threads
	}
	if f.Changed("timeout") {
		m.Execution.Timeout = runTimeout.String()
	} else if m.Execution.Timeout == "" && appConfig != nil && appConfig.Execution.Timeout > 0 {
		m.Execution.Timeout = appConfig.Execution.Timeout.String()
	}
	if f.Changed("launch-rate") {
		m.Execution.LaunchRate = runLaunchRate
	} else if m.Execution.LaunchRate == 0 && appConfig != nil {
		m.Execution.LaunchRate = appConfig.Execution.LaunchRate
	}
	if f.Changed("events") {
		m.Output.Events = runEvents
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.ApplyDefaults()
	return m, nil
}

// showRunPlan displays the expanded grid without executing.
func showRunPlan(m *manifest.Manifest, specs []jobgrid.Spec) error {
	fmt.Println("=== Batch Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Program:     %s\n", m.Run.Program)
	fmt.Printf("Binary:      %s\n", m.Run.Binary)
	fmt.Printf("Input:       %s\n", m.Run.Input)
	fmt.Printf("Output dir:  %s\n", m.Run.OutputDir)
	fmt.Printf("K range:     %d..%d\n", m.Grid.MinK, m.Grid.MaxK)
	fmt.Printf("Replicates:  %d (effective %d)\n", m.Grid.Replicates, m.GridParams().EffectiveReplicates())
	fmt.Printf("Threads:     %d\n", m.Execution.Threads)
	if m.Timeout() > 0 {
		fmt.Printf("Timeout:     %s\n", m.Timeout())
	}
	fmt.Println()
	fmt.Printf("Jobs (%d):\n", len(specs))
	for _, s := range specs {
		fmt.Printf("  %-28s %s\n", s.ID(), strings.Join(s.CommandLine, " "))
	}
	return nil
}

// createEventsWriter resolves the event destination.
// Returns the writer, a cleanup function, and any error.
func createEventsWriter(dest, batchID, program string) (events.Writer, func(), error) {
	if dest == "" {
		return events.NopWriter{}, func() {}, nil
	}
	if dest == "stdout" {
		w := events.NewJSONLWriter(os.Stdout, batchID, program)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create event file %s: %w", path, err)
	}
	w := events.NewJSONLWriter(f, batchID, program)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}

func statusServer(addr, batchID string, pool *scheduler.Pool) (*server.Server, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid --status-addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --status-addr port %q: %w", portStr, err)
	}
	return server.New(host, port, batchID, pool).WithLogger(observability.CLILogger), nil
}
