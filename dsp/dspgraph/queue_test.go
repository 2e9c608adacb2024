package dspgraph

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueItem struct {
	producer, seq int
	next          atomic.Pointer[queueItem]
}

func newTestQueue() *commitQueue[queueItem] {
	return newCommitQueue(func(it *queueItem) *atomic.Pointer[queueItem] { return &it.next })
}

func TestCommitQueueFIFO(t *testing.T) {
	t.Parallel()

	q := newTestQueue()
	require.True(t, q.empty())

	for i := range 5 {
		q.push(&queueItem{seq: i})
	}

	var got []int
	n := q.drain(func(it *queueItem) { got = append(got, it.seq) })

	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.True(t, q.empty())
	assert.Zero(t, q.drain(func(*queueItem) {}))
}

func TestCommitQueuePerProducerOrder(t *testing.T) {
	t.Parallel()

	q := newTestQueue()

	const producers, perProducer = 4, 500

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perProducer {
				q.push(&queueItem{producer: p, seq: i})
			}
		}()
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}

	total := 0
	check := func(it *queueItem) {
		assert.Greater(t, it.seq, last[it.producer])
		last[it.producer] = it.seq
		total++
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}

		q.drain(check)
	}

	q.drain(check)
	assert.Equal(t, producers*perProducer, total)
}

func TestBeginMixAppliesQueuedBlocks(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1, WithWorkers(0))

	addSource(t, g, &constKernel{value: 1}, nil)
	addSource(t, g, &constKernel{value: 2}, nil)
	assert.False(t, g.queue.empty())

	out := mix(t, g, 16, Synchronous)
	assert.InDelta(t, 3, out[0], 1e-12)
	assert.True(t, g.queue.empty())
	assert.InDelta(t, 2, testutil.ToFloat64(g.metrics.blocksApplied), 0)

	mix(t, g, 16, Synchronous)
	assert.InDelta(t, 2, testutil.ToFloat64(g.metrics.blocksApplied), 0)
}
