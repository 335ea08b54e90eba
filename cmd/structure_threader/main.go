package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rohankumardubey/Structure-threader/internal/cmd"
)

// Populated at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
