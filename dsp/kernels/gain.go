package kernels

import (
	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// GainLevel is the parameter index of the linear gain factor.
const GainLevel = 0

// Gain scales its inlet by the level parameter.
type Gain struct {
	mem  *buffer.Allocator
	ramp *buffer.Block
}

func newGain(cfg Config) (Spec, error) {
	return Spec{
		Kernel:  &Gain{},
		Params:  []dspgraph.ParameterDescription{{Name: "level", Min: 0, Max: 16, Default: cfg.GetNum("level", 1)}},
		Inlets:  1,
		Outlets: 1,
	}, nil
}

func (k *Gain) Initialize(ctx *dspgraph.InitContext) error {
	ramp, err := ctx.Memory.AllocateFloats(ctx.BufferSize)
	if err != nil {
		return err
	}

	k.mem, k.ramp = ctx.Memory, ramp

	return nil
}

func (k *Gain) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Inputs) == 0 || len(ctx.Outputs) == 0 {
		return
	}

	in, out := ctx.Inputs[0], ctx.Outputs[0]
	channels := min(in.Channels, out.Channels)

	if level, ok := ctx.Parameters.Constant(GainLevel); ok {
		for ch := range channels {
			vecmath.ScaleBlock(out.Channel(ch), in.Channel(ch), level)
		}

		return
	}

	ramp := k.ramp.Floats()[:ctx.Frames]
	ctx.Parameters.Fill(GainLevel, ramp)

	for ch := range channels {
		vecmath.MulBlock(out.Channel(ch), in.Channel(ch), ramp)
	}
}

func (k *Gain) Dispose() {
	if k.ramp != nil {
		_ = k.mem.Free(k.ramp)
		k.ramp = nil
	}
}
