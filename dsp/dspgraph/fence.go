package dspgraph

import (
	"context"
	"sync"
)

// Fence is a single-shot completion signal. Waiting never spins.
type Fence struct {
	done chan struct{}
	once sync.Once
}

func newFence() *Fence {
	return &Fence{done: make(chan struct{})}
}

// Done returns a channel that is closed once the fence signals.
func (f *Fence) Done() <-chan struct{} {
	return f.done
}

// Signaled reports whether the fence has signaled.
func (f *Fence) Signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the fence signals or ctx is done.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fence) signal() {
	f.once.Do(func() { close(f.done) })
}
