package speech

import "sync"

// Gate carries the cancellation state shared between the worker, the
// audio delivery path, and stop requesters. Two flags live under one
// mutex: stopped, which the delivery callback polls to abort playback,
// and stopRequested, which stays raised until the worker has drained
// the queue and acknowledged. Stop is level-triggered; the flags hold
// their value until explicitly consumed, so a request can never fall
// into a timing gap.
type Gate struct {
	mu            sync.Mutex
	stopped       bool
	stopRequested bool
	closed        bool
	ack           *sync.Cond
}

func NewGate() *Gate {
	g := &Gate{}
	g.ack = sync.NewCond(&g.mu)
	return g
}

// RequestStop raises both flags and, still under the gate mutex, runs
// discard so buffered audio is dropped atomically with the flag flip.
// It does not wait; callers follow up with AwaitAcknowledged after
// waking the worker.
func (g *Gate) RequestStop(discard func()) {
	g.mu.Lock()
	g.stopped = true
	g.stopRequested = true
	if discard != nil {
		discard()
	}
	g.mu.Unlock()
}

// AwaitAcknowledged blocks until the worker has finished processing a
// pending stop. Returns immediately when none is pending or the gate
// has been closed; after close there is no worker left to acknowledge.
func (g *Gate) AwaitAcknowledged() {
	g.mu.Lock()
	for g.stopRequested && !g.closed {
		g.ack.Wait()
	}
	g.mu.Unlock()
}

// Acknowledge clears both flags and releases every waiting stop
// requester. Worker only, after the queue has been drained and the
// engine cancelled.
func (g *Gate) Acknowledge() {
	g.mu.Lock()
	g.stopped = false
	g.stopRequested = false
	g.ack.Broadcast()
	g.mu.Unlock()
}

// Close releases every current and future stop waiter. The worker
// calls this on exit.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.ack.Broadcast()
	g.mu.Unlock()
}

// StopPending reports whether a stop is awaiting worker processing.
func (g *Gate) StopPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopRequested
}

// Stopped reports whether playback is cancelled. The delivery callback
// checks this between sink writes.
func (g *Gate) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// ClearStopped lowers the playback-cancel flag. The worker calls this
// right before starting a new utterance. A stop that raced in after
// the worker's last pending-stop check must still cancel that
// utterance, so the flag is left raised while a request is pending.
func (g *Gate) ClearStopped() {
	g.mu.Lock()
	if !g.stopRequested {
		g.stopped = false
	}
	g.mu.Unlock()
}
