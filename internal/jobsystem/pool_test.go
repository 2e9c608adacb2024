package jobsystem

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEverySubmittedJob(t *testing.T) {
	t.Parallel()

	var (
		sum atomic.Int64
		wg  sync.WaitGroup
	)

	p := New("sum", 4, 16, func(v int) {
		sum.Add(int64(v))
		wg.Done()
	}, zerolog.Nop())
	defer p.Stop()

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		require.True(t, p.Submit(i))
	}

	wg.Wait()
	assert.EqualValues(t, 5050, sum.Load())
	assert.Equal(t, 4, p.Workers())
}

func TestPoolRecoversPanics(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup

	p := New("panic", 1, 1, func(v int) {
		defer wg.Done()

		if v == 0 {
			panic("boom")
		}
	}, zerolog.Nop())

	wg.Add(2)
	p.Submit(0)
	p.Submit(1)
	wg.Wait()
	p.Stop()

	assert.EqualValues(t, 1, p.Panics())
	assert.EqualValues(t, 1, p.Executed())
}

func TestPoolSubmitAfterStop(t *testing.T) {
	t.Parallel()

	p := New("stopped", 0, 0, func(int) {}, zerolog.Nop())
	p.Stop()
	p.Stop()

	assert.False(t, p.Submit(1))
	assert.Equal(t, 1, p.Workers())
}
