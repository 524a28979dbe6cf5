package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

const defaultPollInterval = 100 * time.Millisecond

var errPending = errors.New("checkers pending")

// Engine drives checkers to a verdict.
type Engine struct {
	interval time.Duration
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPollInterval sets the sleep between two polls. Defaults to 100ms.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a wait engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		interval: defaultPollInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("logger", "wait"))
	return e
}

// Wait polls checkers until every required checker is satisfied (positive), any
// checker failed (negative) or the deadline passed (unknown). A deadline <= 0
// waits until a terminal condition. Every checker is cleaned up exactly once, in
// order, on every path. The error is non-nil only when ctx is cancelled.
func (e *Engine) Wait(ctx context.Context, deadline time.Duration, checkers ...Checker) (domain.WaitVerdict, error) {
	start := time.Now()
	defer e.cleanUp(checkers)

	waitCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	state := make([]Status, len(checkers))
	status := domain.WaitUnknown
	// Only non-required checkers: nothing gates success, they can only fail.
	watchOnly := !anyRequired(checkers)
	err := retry.Do(waitCtx, retry.NewConstant(e.interval), func(ctx context.Context) error {
		switch e.poll(ctx, checkers, state) {
		case Failed:
			status = domain.WaitNegative
			return nil
		case Satisfied:
			status = domain.WaitPositive
			return nil
		}
		if watchOnly && deadline <= 0 {
			status = domain.WaitPositive
			return nil
		}
		return retry.RetryableError(errPending)
	})
	verdict := domain.WaitVerdict{Status: status, Elapsed: time.Since(start)}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return verdict, fmt.Errorf("%w: %w", domain.ErrInterrupted, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		if watchOnly {
			verdict.Status = domain.WaitPositive
		}
	default:
		return verdict, err
	}
	e.logger.Debug("wait finished",
		slog.String("status", string(verdict.Status)),
		slog.Duration("elapsed", verdict.Elapsed),
	)
	return verdict, nil
}

// poll checks every checker that has not reached a terminal status yet. Failure
// dominates satisfaction observed in the same poll.
func (e *Engine) poll(ctx context.Context, checkers []Checker, state []Status) Status {
	failed := false
	for i, c := range checkers {
		if state[i] == Pending {
			state[i] = c.Check(ctx)
		}
		if state[i] == Failed {
			failed = true
		}
	}
	if failed {
		return Failed
	}

	required := 0
	for i, c := range checkers {
		if !c.Required() {
			continue
		}
		required++
		if state[i] != Satisfied {
			return Pending
		}
	}
	if required == 0 {
		return Pending
	}
	return Satisfied
}

func (e *Engine) cleanUp(checkers []Checker) {
	for _, err := range multierr.Errors(CleanUpAll(checkers)) {
		e.logger.Warn("checker cleanup failed", slog.Any("error", err))
	}
}

// Pause sleeps for d without running any checker.
func (e *Engine) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrInterrupted, ctx.Err())
	case <-t.C:
		return nil
	}
}

func anyRequired(checkers []Checker) bool {
	for _, c := range checkers {
		if c.Required() {
			return true
		}
	}
	return false
}
