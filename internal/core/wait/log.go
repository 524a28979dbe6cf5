package wait

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/melih/lighthouse-up/internal/core/domain"
)

// LogChecker watches a container's log output for a success pattern and an
// optional failure pattern. The first line matching either decides the result;
// success is tested first. A checker with only a failure pattern is not
// required.
type LogChecker struct {
	watcher *LogWatcher
	success *regexp.Regexp
	failure *regexp.Regexp
	logger  *slog.Logger

	sub               *LogSubscription
	subscribeFailures int
	detected          atomic.Int32
}

// NewLogChecker compiles the patterns of a log probe. At least one pattern must
// be set.
func NewLogChecker(watcher *LogWatcher, probe domain.LogProbe) (*LogChecker, error) {
	if probe.Success == "" && probe.Failure == "" {
		return nil, fmt.Errorf("%w: log probe without pattern", domain.ErrInvalidSpec)
	}
	c := &LogChecker{watcher: watcher, logger: watcher.logger}
	var err error
	if probe.Success != "" {
		if c.success, err = regexp.Compile(probe.Success); err != nil {
			return nil, fmt.Errorf("%w: log pattern %q: %v", domain.ErrInvalidSpec, probe.Success, err)
		}
	}
	if probe.Failure != "" {
		if c.failure, err = regexp.Compile(probe.Failure); err != nil {
			return nil, fmt.Errorf("%w: fail pattern %q: %v", domain.ErrInvalidSpec, probe.Failure, err)
		}
	}
	return c, nil
}

// Check subscribes to the log stream on first use and then reports whatever the
// stream listener detected so far.
func (c *LogChecker) Check(ctx context.Context) Status {
	if c.sub == nil {
		sub, err := c.watcher.Subscribe(ctx, c.match)
		if err != nil {
			level := slog.LevelWarn
			if c.subscribeFailures > 0 {
				level = slog.LevelDebug
			}
			c.subscribeFailures++
			c.logger.Log(ctx, level, "log subscription failed, retrying",
				slog.Int("attempt", c.subscribeFailures),
				slog.Any("error", err),
			)
			return Pending
		}
		c.sub = sub
	}
	return Status(c.detected.Load())
}

// match runs on the stream's goroutine. It returns false after the first
// decisive line.
func (c *LogChecker) match(line string) bool {
	if c.success != nil && c.success.MatchString(line) {
		c.detected.Store(int32(Satisfied))
		return false
	}
	if c.failure != nil && c.failure.MatchString(line) {
		c.detected.Store(int32(Failed))
		return false
	}
	return true
}

func (c *LogChecker) CleanUp() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Close()
}

func (c *LogChecker) Required() bool { return c.success != nil }

func (c *LogChecker) String() string {
	var parts []string
	if c.success != nil {
		parts = append(parts, fmt.Sprintf("on log out '%s'", c.success))
	}
	if c.failure != nil {
		parts = append(parts, fmt.Sprintf("for no log out '%s'", c.failure))
	}
	return strings.Join(parts, " and ")
}
