package wait

import (
	"context"
	"fmt"
	"time"
)

// DelayChecker is satisfied once the given time has passed since its first
// check.
type DelayChecker struct {
	delay time.Duration
	now   func() time.Time
	start time.Time
}

// NewDelayChecker creates a delay checker.
func NewDelayChecker(delay time.Duration) *DelayChecker {
	return &DelayChecker{delay: delay, now: time.Now}
}

func (c *DelayChecker) Check(context.Context) Status {
	now := c.now()
	if c.start.IsZero() {
		c.start = now
	}
	if now.Sub(c.start) >= c.delay {
		return Satisfied
	}
	return Pending
}

func (c *DelayChecker) CleanUp() error { return nil }

func (c *DelayChecker) Required() bool { return true }

func (c *DelayChecker) String() string {
	return fmt.Sprintf("at least %d ms", c.delay.Milliseconds())
}
