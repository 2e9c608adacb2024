// Package jobsystem runs graph jobs on a fixed set of long-lived worker
// goroutines.
package jobsystem

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pool dispatches values of type T to a handler running on worker
// goroutines. Submission never allocates, so it is usable from audio paths
// as long as the queue is sized for the maximum number of outstanding jobs.
type Pool[T any] struct {
	name    string
	handler func(T)
	tasks   chan T
	logger  zerolog.Logger

	workers  int
	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once

	executed atomic.Uint64
	panics   atomic.Uint64
}

// New starts workers goroutines serving a queue of queueSize slots.
// workers < 1 is treated as 1.
func New[T any](name string, workers, queueSize int, handler func(T), logger zerolog.Logger) *Pool[T] {
	if workers < 1 {
		workers = 1
	}

	if queueSize < workers {
		queueSize = workers
	}

	p := &Pool[T]{
		name:    name,
		handler: handler,
		tasks:   make(chan T, queueSize),
		logger:  logger.With().Str("component", "jobsystem").Str("pool", name).Logger(),
		workers: workers,
	}

	p.wg.Add(workers)

	for range workers {
		go p.worker()
	}

	p.logger.Debug().Int("workers", workers).Int("queue", queueSize).Msg("pool started")

	return p
}

// Submit queues v, blocking while the queue is full. It reports false once
// the pool is stopped.
func (p *Pool[T]) Submit(v T) bool {
	if p.stopped.Load() {
		return false
	}

	p.tasks <- v

	return true
}

// Workers returns the number of worker goroutines.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Executed returns the number of handler invocations that returned.
func (p *Pool[T]) Executed() uint64 {
	return p.executed.Load()
}

// Panics returns the number of handler panics recovered by the pool.
func (p *Pool[T]) Panics() uint64 {
	return p.panics.Load()
}

// Stop drains the queue and waits for all workers to exit. Callers must
// ensure no Submit runs concurrently with Stop.
func (p *Pool[T]) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.tasks)
		p.wg.Wait()
		p.logger.Debug().Uint64("executed", p.executed.Load()).Msg("pool stopped")
	})
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for v := range p.tasks {
		p.run(v)
	}
}

func (p *Pool[T]) run(v T) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error().Interface("panic", r).Msg("job panic recovered")
		}
	}()

	p.handler(v)
	p.executed.Add(1)
}
