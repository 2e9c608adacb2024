package kernels

import (
	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// NoiseLevel is the parameter index of the peak noise level.
const NoiseLevel = 0

// Noise generates triangular-PDF white noise in [-level, level]. The
// sequence is fully determined by the seed.
type Noise struct {
	seed  int64
	state *vecmath.DitherState

	mem   *buffer.Allocator
	level *buffer.Block
}

func newNoise(cfg Config) (Spec, error) {
	return Spec{
		Kernel:  &Noise{seed: int64(cfg.GetNum("seed", 1))},
		Params:  []dspgraph.ParameterDescription{{Name: "level", Min: 0, Max: 1, Default: cfg.GetNum("level", 0.1)}},
		Outlets: 1,
	}, nil
}

func (k *Noise) Initialize(ctx *dspgraph.InitContext) error {
	level, err := ctx.Memory.AllocateFloats(ctx.BufferSize)
	if err != nil {
		return err
	}

	k.mem, k.level = ctx.Memory, level
	k.state = vecmath.NewDitherState(k.seed)

	return nil
}

func (k *Noise) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}

	out := ctx.Outputs[0]

	if level, ok := ctx.Parameters.Constant(NoiseLevel); ok {
		for ch := range out.Channels {
			vecmath.GenerateTPDF(out.Channel(ch), level, k.state)
		}

		return
	}

	level := k.level.Floats()[:ctx.Frames]
	ctx.Parameters.Fill(NoiseLevel, level)

	for ch := range out.Channels {
		s := out.Channel(ch)
		vecmath.GenerateTPDF(s, 1, k.state)
		vecmath.MulBlockInPlace(s, level)
	}
}

func (k *Noise) Dispose() {
	if k.level != nil {
		_ = k.mem.Free(k.level)
		k.level = nil
	}
}
