package purge

import (
	"context"
	"testing"
	"time"
)

func TestPacerAllow(t *testing.T) {
	p := NewPacer(2, 1, 100*time.Millisecond)

	if !p.Allow() || !p.Allow() {
		t.Fatal("expected initial capacity to allow two calls")
	}
	if p.Allow() {
		t.Error("expected empty pacer to deny")
	}

	time.Sleep(150 * time.Millisecond)
	if !p.Allow() {
		t.Error("expected a token after refill")
	}
}

func TestPacerWaitSpacesCalls(t *testing.T) {
	p := NewPacer(1, 1, 50*time.Millisecond)
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() failed: %v", err)
	}

	start := time.Now()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait() failed: %v", err)
	}
	if waited := time.Since(start); waited < 40*time.Millisecond {
		t.Errorf("second Wait() returned after %v, want at least one refill period", waited)
	}
}

func TestPacerWaitCancel(t *testing.T) {
	p := NewPacer(1, 1, 10*time.Second)
	p.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after cancellation")
		}
	case <-time.After(time.Second):
		t.Error("Wait() did not return after cancel")
	}
}
