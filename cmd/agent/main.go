// Package main is the entrypoint for the printbridge polling agent,
// intended to be run on the printer's network by an external scheduler
// such as cron. One invocation performs one polling pass; a non-zero
// exit means the pass could not run at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"printbridge/internal/agent"
	"printbridge/internal/config"
	"printbridge/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("agent run failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := agent.NewClient(cfg.Agent)
	invoker := &agent.CommandInvoker{
		Interpreter: cfg.Agent.Interpreter,
		Script:      cfg.Agent.Script,
	}
	worker := agent.NewWorker(client, invoker, cfg.Agent, logger)

	return worker.RunOnce(ctx)
}
