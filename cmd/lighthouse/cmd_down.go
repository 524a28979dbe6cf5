package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"sort"

	"github.com/melih/lighthouse-up/internal/config"
	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/mfridman/xflag"
	"go.uber.org/multierr"
)

// runDown stops the containers of a batch started with -keep or left behind by
// a crashed run. Containers are stopped newest first.
func runDown(ctx context.Context, logger *slog.Logger, args []string) error {
	settings, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("lighthouse down", flag.ContinueOnError)
	fs.BoolVar(&settings.KeepContainers, "keep", settings.KeepContainers, "stop but do not remove containers")
	fs.BoolVar(&settings.RemoveVolumes, "remove-volumes", settings.RemoveVolumes, "remove anonymous volumes with the containers")
	if err := xflag.ParseToEnd(fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("down: exactly one batch id is required")
	}
	batchID := fs.Arg(0)

	engine, err := newEngine(logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	containers, err := engine.ListBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		logger.Warn("no containers found", slog.String("batch", batchID))
		return nil
	}
	sort.SliceStable(containers, func(i, j int) bool {
		return containers[i].Started.After(containers[j].Started)
	})

	var errs error
	for _, rc := range containers {
		if rc.State == domain.StateStarted {
			if err := engine.StopContainer(ctx, rc.ID, 0); err != nil {
				errs = multierr.Append(errs, &domain.EngineCallError{Op: "stop", Container: rc.Name, Err: err})
				continue
			}
		}
		if !settings.KeepContainers {
			if err := engine.RemoveContainer(ctx, rc.ID, settings.RemoveVolumes); err != nil {
				errs = multierr.Append(errs, &domain.EngineCallError{Op: "remove", Container: rc.Name, Err: err})
				continue
			}
		}
		logger.Info("container stopped", slog.String("name", rc.Name), slog.String("container", rc.Engine))
	}
	return errs
}
