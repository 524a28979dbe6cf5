package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/melih/lighthouse-up/internal/adapters/docker"
	"github.com/melih/lighthouse-up/internal/core/orchestrator"
)

var (
	flags   = flag.NewFlagSet("lighthouse", flag.ExitOnError)
	envFile = flags.String("env-file", ".env", "load environment variables from file")
	verbose = flags.Bool("v", false, "enable debug logging")
)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		flags.Usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(*verbose)
	var err error
	switch args[0] {
	case "up":
		err = runUp(ctx, logger, args[1:])
	case "down":
		err = runDown(ctx, logger, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "lighthouse: unknown command %q\n\n", args[0])
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		if orchestrator.IsInterrupted(err) {
			logger.Warn("interrupted", slog.Any("error", err))
			os.Exit(130)
		}
		logger.Error("lighthouse failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newEngine(logger *slog.Logger) (*docker.Adapter, error) {
	opts := []docker.Option{docker.WithLogger(logger)}
	if *verbose {
		opts = append(opts, docker.WithPullProgress(os.Stderr))
	}
	engine, err := docker.NewAdapter(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker engine unavailable: %w", err)
	}
	return engine, nil
}

func usage() {
	fmt.Fprint(os.Stderr, usagePrefix)
	flags.PrintDefaults()
	fmt.Fprint(os.Stderr, usageCommands)
}

var (
	usagePrefix = `Usage: lighthouse [OPTIONS] COMMAND [COMMAND OPTIONS]

Starts a batch of dependent containers in order and waits for each to become
ready before starting the next one.

Options:
`

	usageCommands = `
Commands:
    up                   Start all containers defined in the config file
    down BATCH_ID        Stop and remove the containers of a batch

Environment:
    LIGHTHOUSE_CONFIG             container definitions (default lighthouse.yaml)
    LIGHTHOUSE_PORT_PROPERTIES    dotenv file receiving captured port properties
    LIGHTHOUSE_SHOW_LOGS          true, false or a comma separated list of names
    LIGHTHOUSE_FOLLOW             keep running until interrupted
    LIGHTHOUSE_KEEP_CONTAINERS    do not remove containers when stopping
    LIGHTHOUSE_REMOVE_VOLUMES     remove anonymous volumes with the containers
    LIGHTHOUSE_STATUS_ADDR        status API listen address in follow mode
    LIGHTHOUSE_POLL_INTERVAL      readiness poll interval (default 100ms)

Run "lighthouse COMMAND -h" for command options.
`
)
