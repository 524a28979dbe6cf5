package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	lhttp "github.com/melih/lighthouse-up/internal/adapters/http"
	"github.com/melih/lighthouse-up/internal/adapters/properties"
	"github.com/melih/lighthouse-up/internal/config"
	"github.com/melih/lighthouse-up/internal/core/orchestrator"
	"github.com/melih/lighthouse-up/internal/core/ports"
	"github.com/melih/lighthouse-up/internal/core/resolver"
	"github.com/melih/lighthouse-up/internal/core/wait"
	"github.com/mfridman/xflag"
	"golang.org/x/sync/errgroup"
)

func runUp(ctx context.Context, logger *slog.Logger, args []string) error {
	settings, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("lighthouse up", flag.ContinueOnError)
	fs.StringVar(&settings.ConfigFile, "config", settings.ConfigFile, "container definitions file")
	fs.StringVar(&settings.PortProperties, "properties", settings.PortProperties, "write captured port properties to this dotenv file")
	fs.StringVar(&settings.ShowLogs, "show-logs", settings.ShowLogs, "print container logs: true, false or a comma separated list of names")
	fs.BoolVar(&settings.Follow, "follow", settings.Follow, "keep running until interrupted, then stop all containers")
	fs.BoolVar(&settings.KeepContainers, "keep", settings.KeepContainers, "do not remove containers when stopping")
	fs.BoolVar(&settings.RemoveVolumes, "remove-volumes", settings.RemoveVolumes, "remove anonymous volumes with the containers")
	fs.StringVar(&settings.StatusAddr, "status-addr", settings.StatusAddr, "serve the status API on this address while following")
	fs.DurationVar(&settings.PollInterval, "poll-interval", settings.PollInterval, "readiness poll interval")
	if err := xflag.ParseToEnd(fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("up: unexpected arguments %v", fs.Args())
	}

	specs, err := config.LoadSpecs(settings.ConfigFile)
	if err != nil {
		return err
	}

	engine, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	order, err := resolver.Resolve(specs, resolver.WithExternal(func(name string) (bool, error) {
		return engine.ContainerExists(ctx, name)
	}))
	if err != nil {
		return err
	}

	var sink ports.PropertySink
	if settings.PortProperties != "" {
		sink = properties.NewDotenvSink(settings.PortProperties)
	}
	waiter := wait.NewEngine(wait.WithPollInterval(settings.PollInterval), wait.WithLogger(logger))
	o := orchestrator.New(engine, waiter, sink, orchestrator.Options{
		ShowLogs:       settings.ShowLogs,
		Follow:         settings.Follow,
		KeepContainers: settings.KeepContainers,
		RemoveVolumes:  settings.RemoveVolumes,
		Properties:     config.Environ(),
		LogOutput:      os.Stdout,
		Logger:         logger,
	})

	batch, err := o.StartAll(ctx, order)
	if err != nil {
		return err
	}
	logger.Info("all containers ready", slog.String("batch", batch.ID()))
	if !settings.Follow {
		return nil
	}
	return follow(ctx, logger, batch, settings.StatusAddr)
}

// follow keeps the batch running until ctx is cancelled and serves the status
// API meanwhile.
func follow(ctx context.Context, logger *slog.Logger, batch *orchestrator.Batch, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return batch.Follow(gctx)
	})
	if addr != "" {
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		lhttp.NewBatchHandler(batch).Register(app.Group("/api/v1"))

		g.Go(func() error {
			logger.Info("status API listening", slog.String("addr", addr))
			if err := app.Listen(addr); err != nil {
				return fmt.Errorf("status API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-batch.Done()
			return app.Shutdown()
		})
	}
	return g.Wait()
}
