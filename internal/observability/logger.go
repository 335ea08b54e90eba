// Package observability provides the process-wide structured logger for
// CLI commands.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It defaults to a no-op logger
// so packages can log before Init runs (e.g. in tests).
var CLILogger = zap.NewNop()

// Init configures CLILogger at the given level ("debug", "info", "warn",
// "error"). Output goes to stderr in console encoding so JSONL event
// output on stdout stays machine-parseable.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	CLILogger = logger
	return nil
}

// Sync flushes any buffered log entries. Called on process exit.
func Sync() {
	_ = CLILogger.Sync()
}
