package dspgraph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterStateInterpolation(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x", Default: 0.25})
	p.addKey(0, 0)
	p.addKey(48000, 1)

	tests := []struct {
		clock uint64
		want  float64
	}{
		{0, 0},
		{12000, 0.25},
		{24000, 0.5},
		{36000, 0.75},
		{48000, 1},
		{96000, 1},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, p.ValueAt(tt.clock), 1e-12, "clock %d", tt.clock)
	}
}

func TestParameterStateBeforeFirstKey(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x", Default: 0.25})
	p.addKey(1000, 1)
	p.addKey(2000, 0)

	assert.Equal(t, 0.25, p.ValueAt(0))
	assert.Equal(t, 0.25, p.ValueAt(999))
	assert.Equal(t, 1.0, p.ValueAt(1000))
	assert.InDelta(t, 0.5, p.ValueAt(1500), 1e-12)
}

func TestParameterStateEqualClocksStep(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x"})
	p.addKey(100, 0)
	p.addKey(200, 1)
	p.addKey(200, 5)
	p.addKey(300, 5)

	assert.InDelta(t, 0.5, p.ValueAt(150), 1e-12)
	assert.Equal(t, 5.0, p.ValueAt(200))
	assert.Equal(t, 5.0, p.ValueAt(250))
}

func TestParameterStateSustain(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x"})
	p.addKey(0, 0)
	p.addKey(1000, 1)
	p.addKey(2000, 0)
	p.sustain(500)

	want := p.ValueAt(500)
	assert.InDelta(t, 0.5, want, 1e-12)

	for _, c := range []uint64{500, 501, 1000, 2000, 1 << 40} {
		assert.Equal(t, want, p.ValueAt(c), "clock %d", c)
	}
}

func TestParameterStateSetFloatRamp(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x", Default: 1})
	p.setFloat(100, 3, 200)

	assert.Equal(t, 1.0, p.ValueAt(100))
	assert.InDelta(t, 2.0, p.ValueAt(200), 1e-12)
	assert.Equal(t, 3.0, p.ValueAt(300))

	p.setFloat(400, 7, 0)
	assert.Equal(t, 7.0, p.ValueAt(400))
	assert.Empty(t, p.Keys())
}

func TestParameterStateAdvance(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x"})
	p.addKey(0, 0)
	p.addKey(100, 1)
	p.addKey(200, 0)

	p.advance(150)
	require.Len(t, p.Keys(), 2)
	assert.InDelta(t, 0.5, p.Value(), 1e-12)
	assert.InDelta(t, 0.25, p.ValueAt(175), 1e-12)

	p.advance(250)
	assert.Empty(t, p.Keys())
	assert.Equal(t, 0.0, p.Value())
	assert.Equal(t, 0.0, p.ValueAt(1000))
}

func TestParameterStateClamp(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x", Min: -1, Max: 1, Default: 5})
	assert.Equal(t, 1.0, p.Value())

	p.setFloat(0, -3, 0)
	assert.Equal(t, -1.0, p.Value())

	p.setFloat(0, math.NaN(), 0)
	assert.Equal(t, -1.0, p.Value())
}

func TestParameterReaderFill(t *testing.T) {
	t.Parallel()

	p := newParameterState(ParameterDescription{Name: "x"})
	p.addKey(10, 0)
	p.addKey(14, 4)

	r := ParameterReader{params: []ParameterState{p}, clock: 10, frames: 8}

	_, constant := r.Constant(0)
	assert.False(t, constant)

	dst := make([]float64, 8)
	r.Fill(0, dst)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 4, 4, 4}, dst)
	assert.Equal(t, 2.0, r.GetFloat(0, 2))
	assert.Equal(t, 0.0, r.GetFloat(3, 0))

	r.clock = 20
	v, constant := r.Constant(0)
	assert.True(t, constant)
	assert.Equal(t, 4.0, v)
}

func TestParameterDescriptionValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, ParameterDescription{Name: "ok", Min: 0, Max: 1}.validate())
	require.ErrorIs(t, ParameterDescription{Name: "bad", Min: 2, Max: 1}.validate(), ErrInvalidParameter)
	require.ErrorIs(t, ParameterDescription{Name: "nan", Min: math.NaN()}.validate(), ErrInvalidParameter)
}
