package kernels

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Oscillator parameter indices.
const (
	OscillatorFrequency = 0
	OscillatorAmplitude = 1
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSaw
	WaveSquare
	WaveTriangle
)

var waveformNames = [...]string{
	WaveSine:     "sine",
	WaveSaw:      "saw",
	WaveSquare:   "square",
	WaveTriangle: "triangle",
}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("Waveform(%d)", int(w))
	}

	return waveformNames[w]
}

// ParseWaveform returns the waveform named s.
func ParseWaveform(s string) (Waveform, error) {
	for i, name := range waveformNames {
		if name == s {
			return Waveform(i), nil
		}
	}

	return WaveSine, fmt.Errorf("kernels: unknown waveform %q", s)
}

// sample evaluates the waveform at phase in [0, 1).
func (w Waveform) sample(phase float64) float64 {
	switch w {
	case WaveSaw:
		return 2*phase - 1
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}

		return -1
	case WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Oscillator generates a naive (non band-limited) periodic waveform on
// every output channel. Frequency and amplitude are sampled per frame.
type Oscillator struct {
	wave       Waveform
	phase      float64
	sampleRate float64

	mem  *buffer.Allocator
	freq *buffer.Block
	amp  *buffer.Block
}

func newOscillator(cfg Config) (Spec, error) {
	wave, err := ParseWaveform(cfg.GetStr("waveform", "sine"))
	if err != nil {
		return Spec{}, err
	}

	return Spec{
		Kernel: &Oscillator{wave: wave, phase: cfg.GetNum("phase", 0)},
		Params: []dspgraph.ParameterDescription{
			{Name: "frequency", Min: 0, Max: 96000, Default: cfg.GetNum("frequency", 440)},
			{Name: "amplitude", Min: 0, Max: 1, Default: cfg.GetNum("amplitude", 0.5)},
		},
		Outlets: 1,
	}, nil
}

func (k *Oscillator) Initialize(ctx *dspgraph.InitContext) error {
	freq, err := ctx.Memory.AllocateFloats(ctx.BufferSize)
	if err != nil {
		return err
	}

	amp, err := ctx.Memory.AllocateFloats(ctx.BufferSize)
	if err != nil {
		_ = ctx.Memory.Free(freq)
		return err
	}

	k.mem, k.freq, k.amp = ctx.Memory, freq, amp
	k.sampleRate = ctx.SampleRate
	k.phase -= math.Floor(k.phase)

	return nil
}

func (k *Oscillator) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Outputs) == 0 || ctx.Outputs[0].Channels == 0 {
		return
	}

	freq := k.freq.Floats()[:ctx.Frames]
	amp := k.amp.Floats()[:ctx.Frames]
	ctx.Parameters.Fill(OscillatorFrequency, freq)
	ctx.Parameters.Fill(OscillatorAmplitude, amp)

	out := ctx.Outputs[0]
	first := out.Channel(0)
	phase := k.phase

	for i := range first {
		first[i] = k.wave.sample(phase)

		phase += freq[i] / k.sampleRate
		phase -= math.Floor(phase)
	}

	k.phase = phase

	vecmath.MulBlockInPlace(first, amp)

	for ch := 1; ch < out.Channels; ch++ {
		copy(out.Channel(ch), first)
	}
}

func (k *Oscillator) Dispose() {
	if k.freq != nil {
		_ = k.mem.Free(k.freq)
		_ = k.mem.Free(k.amp)
		k.freq, k.amp = nil, nil
	}
}

// PhaseReset returns an updater that moves an Oscillator to phase, given in
// cycles.
func PhaseReset(phase float64) dspgraph.KernelUpdater {
	return dspgraph.UpdaterFunc(func(kernel dspgraph.AudioKernel) error {
		osc, ok := kernel.(*Oscillator)
		if !ok {
			return fmt.Errorf("%w: %T is not an oscillator", ErrWrongKernel, kernel)
		}

		osc.phase = phase - math.Floor(phase)

		return nil
	})
}
