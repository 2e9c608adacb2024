package handle

import (
	"fmt"
	"sync"
)

// Handle is an opaque, generation-checked reference to a slot in a [Table].
// The zero Handle never validates.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

// Index returns the slot index.
func (h Handle) Index() uint32 {
	return h.index
}

// Generation returns the slot generation the handle was issued with.
func (h Handle) Generation() uint32 {
	return h.generation
}

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(nil)"
	}

	return fmt.Sprintf("handle(%d:%d)", h.index, h.generation)
}

type slot[T any] struct {
	generation uint32
	used       bool
	value      T
}

// Table is a dense, thread-safe slot table. Allocation reuses freed slots in
// LIFO order; reused slots always carry a bumped generation.
type Table[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
	live  int
}

// NewTable returns a Table with room for capacity slots before growing.
func NewTable[T any](capacity int) *Table[T] {
	if capacity < 0 {
		capacity = 0
	}

	return &Table[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

// Allocate stores v in a free slot and returns its handle.
func (t *Table[T]) Allocate(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{generation: 1})
	}

	s := &t.slots[idx]
	s.used = true
	s.value = v
	t.live++

	return Handle{index: idx, generation: s.generation}
}

// Free invalidates h and returns the value it referenced. It reports false
// for stale or unknown handles, so freeing twice is harmless.
func (t *Table[T]) Free(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T

	s := t.lookup(h)
	if s == nil {
		return zero, false
	}

	v := s.value
	s.value = zero
	s.used = false

	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}

	t.free = append(t.free, h.index)
	t.live--

	return v, true
}

// Get returns the value referenced by h.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}

	return s.value, true
}

// Set replaces the value referenced by h.
func (t *Table[T]) Set(h Handle, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return false
	}

	s.value = v

	return true
}

// IsValid reports whether h references a live slot.
func (t *Table[T]) IsValid(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lookup(h) != nil
}

// Len returns the number of live slots.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.live
}

// Each calls fn for every live slot in index order until fn returns false.
// fn must not call back into the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if !s.used {
			continue
		}

		if !fn(Handle{index: uint32(i), generation: s.generation}, s.value) {
			return
		}
	}
}

func (t *Table[T]) lookup(h Handle) *slot[T] {
	if h.generation == 0 || int(h.index) >= len(t.slots) {
		return nil
	}

	s := &t.slots[h.index]
	if !s.used || s.generation != h.generation {
		return nil
	}

	return s
}
