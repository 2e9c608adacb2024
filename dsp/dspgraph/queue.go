package dspgraph

import "sync/atomic"

// commitQueue is a lock-free multi-producer, single-consumer FIFO of
// intrusively linked items. Producers push onto a Treiber stack; the single
// consumer takes the whole stack at once and reverses it, which restores
// push order. Neither side allocates.
type commitQueue[T any] struct {
	head atomic.Pointer[T]
	link func(*T) *atomic.Pointer[T]
}

func newCommitQueue[T any](link func(*T) *atomic.Pointer[T]) *commitQueue[T] {
	return &commitQueue[T]{link: link}
}

func (q *commitQueue[T]) push(v *T) {
	next := q.link(v)

	for {
		old := q.head.Load()
		next.Store(old)

		if q.head.CompareAndSwap(old, v) {
			return
		}
	}
}

// drain removes every queued item and calls fn on them in push order.
func (q *commitQueue[T]) drain(fn func(*T)) int {
	top := q.head.Swap(nil)
	if top == nil {
		return 0
	}

	var prev *T

	for cur := top; cur != nil; {
		next := q.link(cur).Load()
		q.link(cur).Store(prev)
		prev, cur = cur, next
	}

	n := 0

	for cur := prev; cur != nil; {
		next := q.link(cur).Load()
		q.link(cur).Store(nil)
		fn(cur)
		cur = next
		n++
	}

	return n
}

func (q *commitQueue[T]) empty() bool {
	return q.head.Load() == nil
}
