package command

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCheckInterval is how often the periodic check runs until an
// operator changes it.
const DefaultCheckInterval = 10 * time.Minute

// Checker runs a refresh function on a fixed interval. The bot uses it to
// re-classify guild channels so the public/private partition tracks
// permission changes made while running.
type Checker struct {
	refresh func(ctx context.Context) error
	logger  *zap.Logger

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
}

// NewChecker builds a stopped checker.
func NewChecker(interval time.Duration, refresh func(ctx context.Context) error, logger *zap.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Checker{
		refresh:  refresh,
		logger:   logger,
		interval: interval,
	}
}

// SetIntervalMinutes updates the interval and returns the applied value.
// A running checker picks it up on its next restart.
func (c *Checker) SetIntervalMinutes(minutes int) time.Duration {
	d := time.Duration(minutes) * time.Minute
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
	return d
}

// Interval returns the configured interval.
func (c *Checker) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Running reports whether the loop is active.
func (c *Checker) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Start launches the loop. It returns false if already running.
func (c *Checker) Start(ctx context.Context) bool {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	interval := c.interval
	c.mu.Unlock()

	go c.loop(loopCtx, interval)
	return true
}

// Stop halts the loop. It returns false if nothing was running.
func (c *Checker) Stop() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (c *Checker) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				c.logger.Error("periodic check failed", zap.Error(err))
				continue
			}
			c.logger.Debug("periodic check completed")
		}
	}
}
