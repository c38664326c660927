package speech

import "sync"

// Queue is the FIFO of pending commands between the control producers
// and the single worker. Removal is peek-then-remove rather than pop:
// the head stays in place until the worker has confirmed the command
// applied, so a failed attempt leaves it queued for retry.
//
// Only the worker removes entries; producers only append. That keeps
// the head stable between Peek and RemoveHead without holding the
// mutex across the engine call.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []Command
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends cmd and wakes the worker. It never blocks beyond the
// mutex.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
	q.cond.Signal()
}

// Peek returns the head command without removing it.
func (q *Queue) Peek() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Command{}, false
	}
	return q.items[0], true
}

// RemoveHead drops the current head. Worker only, after the peeked
// command has been applied.
func (q *Queue) RemoveHead() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	q.items[0] = Command{}
	q.items = q.items[1:]
}

// Drain discards every pending command and reports how many were
// dropped.
func (q *Queue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Depth reports the number of pending commands.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Kick wakes the worker without adding work, used for stop and
// shutdown notifications. Broadcasting under the mutex guarantees a
// waiter is either already parked (and woken) or has not yet checked
// its predicate (and will see the caller's state change).
func (q *Queue) Kick() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// AwaitWork blocks until the queue is non-empty or interrupt reports
// true. interrupt is re-evaluated on every wakeup while the queue
// mutex is held, so it must not touch the queue.
func (q *Queue) AwaitWork(interrupt func() bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !interrupt() {
		q.cond.Wait()
	}
}
