// Package purge implements the operator-invoked bulk deletion of a target
// author's messages, with rate-limit backoff, per-message retry, and a
// confirmation gate in front of any destructive work.
package purge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// tickerCheckMultiplier is how many times to poll per refill period while
// waiting for a token.
const tickerCheckMultiplier = 10

// Pacer is a token bucket used to space deletion calls out, keeping the
// purge inside the platform's shared rate-limit budget.
type Pacer struct {
	lastRefill   time.Time
	refillPeriod time.Duration
	capacity     int
	tokens       int
	refillRate   int
	mu           sync.Mutex
}

// NewPacer creates a pacer holding capacity tokens, refilled at
// refillRate per refillPeriod.
func NewPacer(capacity, refillRate int, refillPeriod time.Duration) *Pacer {
	return &Pacer{
		capacity:     capacity,
		tokens:       capacity, // Start full
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// DefaultPacer allows one deletion call per second with no burst, the
// spacing the purge loop uses between deletions.
func DefaultPacer() *Pacer {
	return NewPacer(1, 1, time.Second)
}

// Allow tries to consume a token, returning true on success.
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refill()

	if p.tokens > 0 {
		p.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.Allow() {
		return nil
	}

	ticker := time.NewTicker(p.refillPeriod / tickerCheckMultiplier)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while pacing: %w", ctx.Err())
		case <-ticker.C:
			if p.Allow() {
				return nil
			}
		}
	}
}

// refill adds tokens for elapsed whole periods, capped at capacity.
func (p *Pacer) refill() {
	now := time.Now()
	elapsed := now.Sub(p.lastRefill)

	periods := int(elapsed / p.refillPeriod)
	if periods <= 0 {
		return
	}

	p.tokens += periods * p.refillRate
	if p.tokens > p.capacity {
		p.tokens = p.capacity
	}

	p.lastRefill = p.lastRefill.Add(time.Duration(periods) * p.refillPeriod)
}
