package kernels

import (
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// MeterEvent reports the level of a meter's signal over one interval.
type MeterEvent struct {
	// Clock is the DSP clock just after the last frame of the interval.
	Clock    uint64
	Channels int
	Peak     [dspgraph.MaxPortChannels]float64
	RMS      [dspgraph.MaxPortChannels]float64
}

// Meter passes its inlet through unchanged and posts a MeterEvent every
// interval seconds.
type Meter struct {
	interval float64

	window  int
	count   int
	peak    [dspgraph.MaxPortChannels]float64
	squares [dspgraph.MaxPortChannels]float64
}

func newMeter(cfg Config) (Spec, error) {
	return Spec{
		Kernel:  &Meter{interval: max(cfg.GetNum("interval", 0.1), 0)},
		Inlets:  1,
		Outlets: 1,
	}, nil
}

func (k *Meter) Initialize(ctx *dspgraph.InitContext) error {
	k.window = max(int(k.interval*ctx.SampleRate), 1)
	return nil
}

func (k *Meter) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Inputs) == 0 {
		return
	}

	in := ctx.Inputs[0]
	for ch := range in.Channels {
		s := in.Channel(ch)
		k.peak[ch] = max(k.peak[ch], vecmath.MaxAbs(s))
		k.squares[ch] += vecmath.DotProduct(s, s)
	}

	if len(ctx.Outputs) > 0 {
		out := ctx.Outputs[0]
		for ch := range min(in.Channels, out.Channels) {
			copy(out.Channel(ch), in.Channel(ch))
		}
	}

	k.count += ctx.Frames
	if k.count < k.window {
		return
	}

	ev := MeterEvent{Clock: ctx.DSPClock + uint64(ctx.Frames), Channels: in.Channels}
	for ch := range in.Channels {
		ev.Peak[ch] = k.peak[ch]
		ev.RMS[ch] = math.Sqrt(k.squares[ch] / float64(k.count))
	}

	ctx.PostEvent(ev)

	k.count = 0
	k.peak = [dspgraph.MaxPortChannels]float64{}
	k.squares = [dspgraph.MaxPortChannels]float64{}
}

func (k *Meter) Dispose() {}
