package irq

import (
	"kestrel/kernel"
	"kestrel/kernel/sync"
)

var (
	// ErrPollQueueFull is returned when registering more poll functions
	// than the queue capacity.
	ErrPollQueueFull = &kernel.Error{Module: "irq", Message: "poll queue is full"}

	// ErrInvalidPollFn is returned when registering a nil poll function.
	ErrInvalidPollFn = &kernel.Error{Module: "irq", Message: "invalid poll function"}
)

// PollFn performs deferred device work. It runs in interrupt context and must
// not block.
type PollFn func()

// PollQueue holds the poll functions run on every timer tick. Its capacity
// is fixed when the queue is created.
type PollQueue struct {
	mu  sync.Mutex
	fns []PollFn
}

// NewPollQueue returns an empty queue that accepts up to capacity functions.
func NewPollQueue(capacity int) *PollQueue {
	return &PollQueue{fns: make([]PollFn, 0, capacity)}
}

// Register appends fn to the queue.
func (q *PollQueue) Register(fn PollFn) *kernel.Error {
	if fn == nil {
		return ErrInvalidPollFn
	}

	if err := q.mu.TryLock(); err != nil {
		return err
	}
	defer q.mu.Unlock()

	if len(q.fns) == cap(q.fns) {
		return ErrPollQueueFull
	}
	q.fns = append(q.fns, fn)
	return nil
}

// Len returns the number of registered functions.
func (q *PollQueue) Len() int {
	return len(q.fns)
}

// Run invokes every registered function in registration order. If the
// queue is being modified the tick is skipped and sync.ErrLocked returned.
func (q *PollQueue) Run() *kernel.Error {
	if err := q.mu.TryLock(); err != nil {
		return err
	}
	fns := q.fns
	q.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}
