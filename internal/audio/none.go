package audio

import "sync"

// noneSink accepts and drops everything. It exists for headless runs
// where synthesis side effects (parameter handling, journal entries)
// matter but playback does not.
type noneSink struct {
	mu    sync.Mutex
	state State
}

func newNoneSink() Sink {
	return &noneSink{}
}

func (n *noneSink) Open(sampleRate int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return ErrClosed
	}
	n.state = StateRunning
	return nil
}

func (n *noneSink) WriteChunk(samples []int16) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateRunning {
		return 0, ErrClosed
	}
	return len(samples), nil
}

func (n *noneSink) DiscardBuffered() error { return nil }

func (n *noneSink) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *noneSink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = StateClosed
	return nil
}
