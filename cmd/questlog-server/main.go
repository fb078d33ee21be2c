// Package main runs the questlog API server. "questlog-server db ..."
// dispatches to the operator commands instead.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"questlog/cmd/questlog-server/cli"
	"questlog/internal/logging"
	"questlog/internal/server"
	"questlog/internal/server/config"
)

func main() {
	// Check for CLI database commands
	if len(os.Args) > 1 && os.Args[1] == "db" {
		if err := cli.Run(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	format := cfg.LogFormat
	if cfg.Dev {
		format = "text"
	}
	logger := logging.Setup("questlog-server", format, cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		stop()
		os.Exit(1)
	}
}
