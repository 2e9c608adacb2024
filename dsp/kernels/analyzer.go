package kernels

import (
	"errors"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// SpectrumEvent carries one single-sided amplitude spectrum of an
// Analyzer's input, downmixed to mono.
type SpectrumEvent struct {
	// Clock is the DSP clock just after the last analyzed frame.
	Clock      uint64
	SampleRate float64
	// Magnitudes holds bins 0 through size/2. The slice is owned by the
	// receiver.
	Magnitudes []float64
}

// BinFrequency returns the center frequency of bin in Hz.
func (e SpectrumEvent) BinFrequency(bin int) float64 {
	if len(e.Magnitudes) < 2 {
		return 0
	}

	return float64(bin) * e.SampleRate / float64(2*(len(e.Magnitudes)-1))
}

// Analyzer passes its inlet through and posts a Hann-windowed FFT of the
// last size frames every hop frames.
type Analyzer struct {
	size int
	hop  int
	plan *algofft.Plan[complex128]

	window   []float64
	scale    float64
	ring     []float64
	pos      int
	filled   int
	since    int
	spectrum []complex128
	re, im   []float64
}

func newAnalyzer(cfg Config) (Spec, error) {
	size := cfg.GetInt("size", 1024)
	if size < 16 || size > 1<<16 || size&(size-1) != 0 {
		return Spec{}, errors.New("analyzer: size must be a power of two in [16, 65536]")
	}

	hop := cfg.GetInt("hop", size)
	if hop < 1 {
		return Spec{}, errors.New("analyzer: hop must be positive")
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return Spec{}, err
	}

	return Spec{
		Kernel:  &Analyzer{size: size, hop: hop, plan: plan},
		Inlets:  1,
		Outlets: 1,
	}, nil
}

func (k *Analyzer) Initialize(*dspgraph.InitContext) error {
	bins := k.size/2 + 1

	k.window = make([]float64, k.size)
	k.ring = make([]float64, k.size)
	k.spectrum = make([]complex128, k.size)
	k.re = make([]float64, bins)
	k.im = make([]float64, bins)

	// Periodic Hann; the amplitude scale undoes its coherent gain.
	sum := 0.0
	for i := range k.window {
		k.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(k.size))
		sum += k.window[i]
	}

	k.scale = 2 / sum
	k.pos, k.filled, k.since = 0, 0, 0

	return nil
}

func (k *Analyzer) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Inputs) == 0 {
		return
	}

	in := ctx.Inputs[0]
	if len(ctx.Outputs) > 0 {
		out := ctx.Outputs[0]
		for ch := range min(in.Channels, out.Channels) {
			copy(out.Channel(ch), in.Channel(ch))
		}
	}

	if in.Channels == 0 {
		return
	}

	norm := 1 / float64(in.Channels)

	for i := range ctx.Frames {
		x := 0.0
		for ch := range in.Channels {
			x += in.Channel(ch)[i]
		}

		k.ring[k.pos] = x * norm
		k.pos = (k.pos + 1) % k.size
		k.filled = min(k.filled+1, k.size)
		k.since++

		if k.filled == k.size && k.since >= k.hop {
			k.since = 0
			k.analyze(ctx, ctx.DSPClock+uint64(i+1))
		}
	}
}

func (k *Analyzer) analyze(ctx *dspgraph.ExecuteContext, clock uint64) {
	// k.pos is the oldest frame of the ring.
	for j := range k.size {
		k.spectrum[j] = complex(k.ring[(k.pos+j)%k.size]*k.window[j], 0)
	}

	if err := k.plan.Forward(k.spectrum, k.spectrum); err != nil {
		ctx.Fail(err)
		return
	}

	for j := range k.re {
		k.re[j] = real(k.spectrum[j])
		k.im[j] = imag(k.spectrum[j])
	}

	mags := make([]float64, len(k.re))
	vecmath.Magnitude(mags, k.re, k.im)
	vecmath.ScaleBlockInPlace(mags, k.scale)

	ctx.PostEvent(SpectrumEvent{Clock: clock, SampleRate: ctx.SampleRate, Magnitudes: mags})
}

func (k *Analyzer) Dispose() {}
