// Package wait decides when a started container is ready. Checkers report a
// monotone status (pending, then satisfied or failed) and the Engine polls a set
// of them under a deadline.
package wait

import (
	"context"
	"strings"

	"github.com/melih/lighthouse-up/internal/core/domain"
	"go.uber.org/multierr"
)

// Status is the state of a single checker.
type Status int

const (
	Pending Status = iota
	Satisfied
	Failed
)

func (s Status) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Checker is a readiness condition. Check must not block longer than a single
// bounded round trip. CleanUp releases anything Check opened and is safe to call
// more than once. A checker that is not required only contributes failures.
type Checker interface {
	Check(ctx context.Context) Status
	CleanUp() error
	Required() bool
	// String describes what is waited for, e.g. "on url http://localhost:8080".
	String() string
}

// Describe joins checker descriptions with " and ".
func Describe(checkers []Checker) string {
	parts := make([]string, 0, len(checkers))
	for _, c := range checkers {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " and ")
}

// CleanUpAll cleans up every checker once, in order, whatever the previous ones
// returned. Failures are combined into CleanupErrors.
func CleanUpAll(checkers []Checker) error {
	var errs error
	for _, c := range checkers {
		if err := c.CleanUp(); err != nil {
			errs = multierr.Append(errs, &domain.CleanupError{Checker: c.String(), Err: err})
		}
	}
	return errs
}
