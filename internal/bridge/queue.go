package bridge

import (
	"log/slog"
	"sync"
)

// Command is a deferred operation against the transport.
type Command func()

// Queue holds commands until the connection is ready, then runs them in
// arrival order. Exactly one goroutine drains at a time and commands run
// without the queue lock held, so a command may enqueue further commands;
// those go to the tail and are picked up by the same drain.
type Queue struct {
	ready func() bool
	log   *slog.Logger

	mu       sync.Mutex
	pending  []Command
	draining bool
}

// NewQueue creates a Queue gated on ready.
func NewQueue(ready func() bool, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{ready: ready, log: log}
}

// Enqueue appends cmd and attempts a drain.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()
	q.Drain()
}

// Drain runs pending commands while the gate reports ready. Calls made while
// another drain is active return immediately; the active drain observes
// anything appended in the meantime.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for q.ready() && len(q.pending) > 0 {
		cmd := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.run(cmd)
		q.mu.Lock()
	}
	q.draining = false
	q.mu.Unlock()
}

// Len returns the number of commands waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) run(cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("bridge: command panicked", "panic", r)
		}
	}()
	cmd()
}
