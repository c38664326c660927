package audio

import "sync"

// Ring is a bounded byte FIFO sitting between the synthesis path and a
// pull-based player. Push takes whatever fits and reports how much;
// Read hands out whatever is buffered and substitutes silence when the
// ring runs dry, so a player that treats short reads or EOF as
// end-of-stream keeps running between utterances. Clear empties the
// ring in O(1) for stop requests.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	r    int
	size int
}

func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Push copies up to len(p) bytes in and returns the number accepted.
func (rb *Ring) Push(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	free := len(rb.buf) - rb.size
	n := len(p)
	if n > free {
		n = free
	}
	w := (rb.r + rb.size) % len(rb.buf)
	first := copy(rb.buf[w:], p[:n])
	if first < n {
		copy(rb.buf, p[first:n])
	}
	rb.size += n
	return n
}

// Read implements io.Reader. When the ring is empty the output is
// zeroed PCM (silence) so the consumer never starves; when data is
// available only real bytes are returned, keeping inserted silence out
// of the middle of an utterance.
func (rb *Ring) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := rb.size
	if n > len(p) {
		n = len(p)
	}
	first := copy(p[:n], rb.buf[rb.r:])
	if first < n {
		copy(p[first:n], rb.buf)
	}
	rb.r = (rb.r + n) % len(rb.buf)
	rb.size -= n
	return n, nil
}

// Clear drops all buffered bytes.
func (rb *Ring) Clear() {
	rb.mu.Lock()
	rb.r = 0
	rb.size = 0
	rb.mu.Unlock()
}

// Free reports how many bytes Push can currently accept.
func (rb *Ring) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf) - rb.size
}

// Buffered reports how many bytes are queued.
func (rb *Ring) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}
