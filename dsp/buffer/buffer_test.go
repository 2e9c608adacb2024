package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferChannelsArePlanar(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	b, err := New(a, 2, 4)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Channels())
	assert.Equal(t, 4, b.Frames())

	copy(b.Channel(0), []float64{1, 2, 3, 4})
	copy(b.Channel(1), []float64{5, 6, 7, 8})

	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, b.Samples()[:8])
}

func TestBufferInterleave(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	b, err := New(a, 2, 3)
	require.NoError(t, err)

	copy(b.Channel(0), []float64{1, 2, 3})
	copy(b.Channel(1), []float64{-1, -2, -3})

	dst := make([]float64, 6)
	n := b.Interleave(dst, 3)
	assert.Equal(t, 6, n)
	assert.Equal(t, []float64{1, -1, 2, -2, 3, -3}, dst)

	short := make([]float64, 4)
	n = b.Interleave(short, 3)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float64{1, -1, 2, -2}, short)
}

func TestBufferZeroAndRelease(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	b, err := New(a, 1, 4)
	require.NoError(t, err)

	copy(b.Channel(0), []float64{1, 1, 1, 1})
	b.Zero(2)
	assert.Equal(t, []float64{0, 0, 1, 1}, b.Channel(0))

	require.NoError(t, b.Release())
	require.NoError(t, b.Release())
	assert.Zero(t, a.Live())
}
