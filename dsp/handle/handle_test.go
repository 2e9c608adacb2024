package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAllocateGet(t *testing.T) {
	t.Parallel()

	tbl := NewTable[string](4)
	a := tbl.Allocate("a")
	b := tbl.Allocate("b")

	require.NotEqual(t, a, b)
	require.False(t, a.IsZero())

	v, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = tbl.Get(b)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableZeroHandleNeverValid(t *testing.T) {
	t.Parallel()

	tbl := NewTable[int](0)
	tbl.Allocate(1)

	var h Handle
	assert.True(t, h.IsZero())
	assert.False(t, tbl.IsValid(h))
}

func TestTableFreeBumpsGeneration(t *testing.T) {
	t.Parallel()

	tbl := NewTable[int](0)
	old := tbl.Allocate(7)

	v, ok := tbl.Free(old)
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.False(t, tbl.IsValid(old))

	reused := tbl.Allocate(8)
	assert.Equal(t, old.Index(), reused.Index(), "slot should be reused")
	assert.Greater(t, reused.Generation(), old.Generation())

	_, ok = tbl.Get(old)
	assert.False(t, ok, "stale handle must not see the reused slot")

	v, ok = tbl.Get(reused)
	require.True(t, ok)
	assert.Equal(t, 8, v)
}

func TestTableDoubleFree(t *testing.T) {
	t.Parallel()

	tbl := NewTable[int](0)
	h := tbl.Allocate(1)

	_, ok := tbl.Free(h)
	require.True(t, ok)

	_, ok = tbl.Free(h)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())

	// A double free must not put the slot on the free list twice.
	a := tbl.Allocate(2)
	b := tbl.Allocate(3)
	assert.NotEqual(t, a.Index(), b.Index())
}

func TestTableSetAndEach(t *testing.T) {
	t.Parallel()

	tbl := NewTable[int](0)
	h0 := tbl.Allocate(0)
	h1 := tbl.Allocate(1)
	h2 := tbl.Allocate(2)

	require.True(t, tbl.Set(h1, 10))
	_, _ = tbl.Free(h2)
	assert.False(t, tbl.Set(h2, 20))

	var seen []int
	tbl.Each(func(h Handle, v int) bool {
		seen = append(seen, v)
		return true
	})
	assert.Equal(t, []int{0, 10}, seen)

	seen = seen[:0]
	tbl.Each(func(h Handle, v int) bool {
		seen = append(seen, v)
		return h != h0
	})
	assert.Equal(t, []int{0}, seen)
}

func TestTableConcurrentAllocate(t *testing.T) {
	t.Parallel()

	tbl := NewTable[int](0)

	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	handles := make([][]Handle, workers)

	for w := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range perWorker {
				h := tbl.Allocate(i)
				handles[w] = append(handles[w], h)

				if i%2 == 0 {
					tbl.Free(h)
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, workers*perWorker/2, tbl.Len())

	seen := make(map[Handle]bool)
	for _, hs := range handles {
		for _, h := range hs {
			assert.False(t, seen[h], "handle %v issued twice", h)
			seen[h] = true
		}
	}
}
