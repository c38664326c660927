package speech

import (
	"testing"
	"time"
)

func TestGateStopLifecycle(t *testing.T) {
	g := NewGate()

	if g.Stopped() || g.StopPending() {
		t.Fatalf("fresh gate reports a stop")
	}

	ran := 0
	g.RequestStop(func() { ran++ })
	if ran != 1 {
		t.Fatalf("discard ran %d times, want 1", ran)
	}
	if !g.Stopped() || !g.StopPending() {
		t.Fatalf("flags not raised after request")
	}

	done := make(chan struct{})
	go func() {
		g.AwaitAcknowledged()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("waiter released before acknowledgement")
	case <-time.After(20 * time.Millisecond):
	}

	g.Acknowledge()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not released by acknowledgement")
	}
	if g.Stopped() || g.StopPending() {
		t.Fatalf("flags still raised after acknowledgement")
	}
}

func TestGateAwaitWithoutPendingStopReturns(t *testing.T) {
	g := NewGate()
	done := make(chan struct{})
	go func() {
		g.AwaitAcknowledged()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("AwaitAcknowledged blocked with no stop pending")
	}
}

func TestGateClearStoppedHeldWhileStopPending(t *testing.T) {
	g := NewGate()
	g.RequestStop(nil)

	// A pending stop must survive the worker starting a new utterance.
	g.ClearStopped()
	if !g.Stopped() {
		t.Fatalf("pending stop flag was cleared")
	}

	g.Acknowledge()
	g.ClearStopped()
	if g.Stopped() {
		t.Fatalf("stop flag raised after acknowledge and clear")
	}
}

func TestGateCloseReleasesWaiters(t *testing.T) {
	g := NewGate()
	g.RequestStop(nil)

	done := make(chan struct{})
	go func() {
		g.AwaitAcknowledged()
		close(done)
	}()

	g.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not release the waiter")
	}

	// Requests made after close must not block either.
	g.RequestStop(nil)
	finished := make(chan struct{})
	go func() {
		g.AwaitAcknowledged()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter blocked on a closed gate")
	}
}
