package purge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
)

// DefaultConfirmTimeout is how long a purge waits for acknowledgment.
const DefaultConfirmTimeout = 30 * time.Second

// ErrConfirmTimeout reports that nobody answered the confirmation prompt.
var ErrConfirmTimeout = errors.New("purge: confirmation timed out")

// Gate collects yes/no answers for pending purge confirmations. The
// command router feeds it every message; Offer consumes the ones that
// answer an open prompt.
type Gate struct {
	mu      sync.Mutex
	waiters map[gateKey]chan bool
}

type gateKey struct {
	channel discord.ChannelID
	user    discord.UserID
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{waiters: make(map[gateKey]chan bool)}
}

// Await blocks until the operator answers, the timeout elapses, or the
// context is canceled. Only an explicit affirmative returns true; a
// timeout returns ErrConfirmTimeout so callers can report cancellation.
func (g *Gate) Await(ctx context.Context, channel discord.ChannelID, user discord.UserID, timeout time.Duration) (bool, error) {
	key := gateKey{channel, user}
	answer := make(chan bool, 1)

	g.mu.Lock()
	if _, exists := g.waiters[key]; exists {
		g.mu.Unlock()
		return false, errors.New("purge: confirmation already pending for this operator")
	}
	g.waiters[key] = answer
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.waiters, key)
		g.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case yes := <-answer:
		return yes, nil
	case <-timer.C:
		return false, ErrConfirmTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Offer routes a message to a pending prompt. It returns true when the
// message was consumed as an answer, so the router stops processing it.
func (g *Gate) Offer(channel discord.ChannelID, user discord.UserID, content string) bool {
	yes, ok := parseAnswer(content)
	if !ok {
		return false
	}

	g.mu.Lock()
	answer, exists := g.waiters[gateKey{channel, user}]
	if exists {
		delete(g.waiters, gateKey{channel, user})
	}
	g.mu.Unlock()

	if !exists {
		return false
	}

	answer <- yes
	return true
}

func parseAnswer(content string) (yes, ok bool) {
	switch strings.ToLower(strings.TrimSpace(content)) {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	default:
		return false, false
	}
}
