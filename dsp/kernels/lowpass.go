package kernels

import (
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
)

// Lowpass parameter indices.
const (
	LowpassCutoff = 0
	LowpassQ      = 1
)

// lowpassStride is the number of frames between coefficient updates while
// cutoff or Q are ramping.
const lowpassStride = 64

// coefficients of a biquad in Direct Form II Transposed, a0 normalized to 1.
type coefficients struct {
	b0, b1, b2 float64
	a1, a2     float64
}

type biquadState struct {
	d0, d1 float64
}

// Lowpass is a resonant second-order lowpass (RBJ cookbook) applied to
// every channel of its inlet.
type Lowpass struct {
	sampleRate float64
	cutoff     float64
	q          float64
	c          coefficients
	state      [dspgraph.MaxPortChannels]biquadState
}

func newLowpass(cfg Config) (Spec, error) {
	return Spec{
		Kernel: &Lowpass{},
		Params: []dspgraph.ParameterDescription{
			{Name: "cutoff", Min: 10, Max: 40000, Default: cfg.GetNum("cutoff", 1000)},
			{Name: "q", Min: 0.1, Max: 40, Default: cfg.GetNum("q", math.Sqrt2/2)},
		},
		Inlets:  1,
		Outlets: 1,
	}, nil
}

func (k *Lowpass) Initialize(ctx *dspgraph.InitContext) error {
	k.sampleRate = ctx.SampleRate
	k.cutoff, k.q = 0, 0

	return nil
}

func (k *Lowpass) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Inputs) == 0 || len(ctx.Outputs) == 0 {
		return
	}

	in, out := ctx.Inputs[0], ctx.Outputs[0]
	channels := min(in.Channels, out.Channels)

	for start := 0; start < ctx.Frames; start += lowpassStride {
		end := min(start+lowpassStride, ctx.Frames)
		k.design(ctx.Parameters.GetFloat(LowpassCutoff, start), ctx.Parameters.GetFloat(LowpassQ, start))

		c := k.c
		for ch := range channels {
			src := in.Channel(ch)[start:end]
			dst := out.Channel(ch)[start:end]
			st := k.state[ch]

			for i, x := range src {
				y := c.b0*x + st.d0
				st.d0 = c.b1*x - c.a1*y + st.d1
				st.d1 = c.b2*x - c.a2*y
				dst[i] = y
			}

			k.state[ch] = st
		}
	}
}

func (k *Lowpass) Dispose() {}

// design recomputes the coefficients when cutoff or q changed.
func (k *Lowpass) design(cutoff, q float64) {
	if cutoff == k.cutoff && q == k.q {
		return
	}

	k.cutoff, k.q = cutoff, q

	cutoff = min(cutoff, 0.49*k.sampleRate)
	w0 := 2 * math.Pi * cutoff / k.sampleRate
	cw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	k.c = coefficients{
		b0: (1 - cw) / 2 / a0,
		b1: (1 - cw) / a0,
		b2: (1 - cw) / 2 / a0,
		a1: -2 * cw / a0,
		a2: (1 - alpha) / a0,
	}
}
