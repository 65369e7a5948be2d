package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diamondburned/arikawa/v3/discord"
)

const (
	confirmCh   = discord.ChannelID(600)
	confirmUser = discord.UserID(42)
)

func TestGateAffirmative(t *testing.T) {
	g := NewGate()

	done := make(chan struct{})
	var yes bool
	var err error
	go func() {
		yes, err = g.Await(context.Background(), confirmCh, confirmUser, time.Second)
		close(done)
	}()

	// Let the waiter register before answering.
	waitForPending(t, g)

	if !g.Offer(confirmCh, confirmUser, "yes") {
		t.Fatal("Offer() did not consume the answer")
	}

	<-done
	if err != nil {
		t.Fatalf("Await() failed: %v", err)
	}
	if !yes {
		t.Error("Await() = false, want true for yes")
	}
}

func TestGateNegative(t *testing.T) {
	g := NewGate()

	done := make(chan struct{})
	var yes bool
	go func() {
		yes, _ = g.Await(context.Background(), confirmCh, confirmUser, time.Second)
		close(done)
	}()
	waitForPending(t, g)

	g.Offer(confirmCh, confirmUser, " N ")
	<-done
	if yes {
		t.Error("Await() = true, want false for no")
	}
}

func TestGateTimeoutCancelsWithNoSideEffects(t *testing.T) {
	g := NewGate()

	yes, err := g.Await(context.Background(), confirmCh, confirmUser, 20*time.Millisecond)
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("Await() error = %v, want ErrConfirmTimeout", err)
	}
	if yes {
		t.Error("Await() = true on timeout")
	}
}

func TestGateIgnoresUnrelatedMessages(t *testing.T) {
	g := NewGate()

	done := make(chan struct{})
	go func() {
		_, _ = g.Await(context.Background(), confirmCh, confirmUser, 200*time.Millisecond)
		close(done)
	}()
	waitForPending(t, g)

	if g.Offer(confirmCh, confirmUser, "maybe later") {
		t.Error("non-answer content was consumed")
	}
	if g.Offer(confirmCh, discord.UserID(7), "yes") {
		t.Error("answer from the wrong operator was consumed")
	}
	if g.Offer(discord.ChannelID(601), confirmUser, "yes") {
		t.Error("answer in the wrong channel was consumed")
	}
	<-done
}

func TestGateNoPendingPrompt(t *testing.T) {
	g := NewGate()
	if g.Offer(confirmCh, confirmUser, "yes") {
		t.Error("Offer() consumed an answer with no pending prompt")
	}
}

func TestGateRejectsDoublePrompt(t *testing.T) {
	g := NewGate()

	go func() {
		_, _ = g.Await(context.Background(), confirmCh, confirmUser, 200*time.Millisecond)
	}()
	waitForPending(t, g)

	if _, err := g.Await(context.Background(), confirmCh, confirmUser, 50*time.Millisecond); err == nil {
		t.Error("second concurrent prompt for the same operator should fail")
	}
}

// waitForPending polls until the gate has a registered waiter.
func waitForPending(t *testing.T, g *Gate) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		n := len(g.waiters)
		g.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("waiter never registered")
}
