package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAlignment(t *testing.T) {
	t.Parallel()

	a := NewAllocator()

	for _, align := range []int{1, 8, 16, 32, 64, 256, 4096} {
		b, err := a.Allocate(100, align)
		require.NoError(t, err)
		assert.True(t, b.Aligned(align), "alignment %d", align)
		assert.Len(t, b.Bytes(), 100)
		assert.Len(t, b.Floats(), 13)
	}
}

func TestAllocateRejectsBadArguments(t *testing.T) {
	t.Parallel()

	a := NewAllocator()

	_, err := a.Allocate(-1, 8)
	require.ErrorIs(t, err, ErrInvalidSize)

	for _, align := range []int{-8, 3, 24, 8192} {
		_, err = a.Allocate(16, align)
		require.ErrorIs(t, err, ErrInvalidAlignment, "alignment %d", align)
	}
}

func TestAllocateZeroesReusedBlocks(t *testing.T) {
	t.Parallel()

	a := NewAllocator()

	b, err := a.AllocateFloats(64)
	require.NoError(t, err)

	for i := range b.Floats() {
		b.Floats()[i] = float64(i + 1)
	}

	require.NoError(t, a.Free(b))

	again, err := a.AllocateFloats(100)
	require.NoError(t, err)
	assert.Same(t, b, again, "same size class should reuse the freed block")

	for i, v := range again.Floats() {
		require.Zero(t, v, "sample %d", i)
	}
}

func TestFreeAccounting(t *testing.T) {
	t.Parallel()

	a := NewAllocator()

	b1, err := a.Allocate(128, 0)
	require.NoError(t, err)
	b2, err := a.Allocate(64, 0)
	require.NoError(t, err)

	assert.EqualValues(t, 192, a.InUse())
	assert.EqualValues(t, 2, a.Live())

	require.NoError(t, a.Free(b1))
	require.ErrorIs(t, a.Free(b1), ErrDoubleFree)
	assert.EqualValues(t, 64, a.InUse())

	other := NewAllocator()
	require.ErrorIs(t, other.Free(b2), ErrForeignBlock)

	require.NoError(t, a.Free(b2))
	assert.Zero(t, a.InUse())
	assert.Zero(t, a.Live())
	assert.EqualValues(t, 2, a.Allocations())
}

func TestAllocatorConcurrent(t *testing.T) {
	t.Parallel()

	a := NewAllocator()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				b, err := a.AllocateFloats(16 + i)
				if err != nil {
					t.Error(err)
					return
				}

				b.Floats()[0] = 1

				if err := a.Free(b); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	wg.Wait()
	assert.Zero(t, a.InUse())
}
