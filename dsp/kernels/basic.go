package kernels

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// ErrWrongKernel is returned by an updater applied to a node whose kernel
// is not of the type the updater was written for.
var ErrWrongKernel = errors.New("kernels: updater does not match kernel type")

// Passthrough copies each inlet to the outlet of the same index.
type Passthrough struct{}

func newPassthrough(_ Config) (Spec, error) {
	return Spec{Kernel: Passthrough{}, Inlets: 1, Outlets: 1}, nil
}

func (Passthrough) Initialize(*dspgraph.InitContext) error { return nil }
func (Passthrough) Dispose()                               {}

func (Passthrough) Execute(ctx *dspgraph.ExecuteContext) {
	for i := range min(len(ctx.Inputs), len(ctx.Outputs)) {
		in, out := ctx.Inputs[i], ctx.Outputs[i]
		for ch := range min(in.Channels, out.Channels) {
			copy(out.Channel(ch), in.Channel(ch))
		}
	}
}

// ConstantValue is the parameter index of the constant's output value.
const ConstantValue = 0

// Constant writes its value parameter to every output channel. Ramping the
// value makes it a control signal source.
type Constant struct{}

func newConstant(cfg Config) (Spec, error) {
	return Spec{
		Kernel:  Constant{},
		Params:  []dspgraph.ParameterDescription{{Name: "value", Default: cfg.GetNum("value", 0)}},
		Outlets: 1,
	}, nil
}

func (Constant) Initialize(*dspgraph.InitContext) error { return nil }
func (Constant) Dispose()                               {}

func (Constant) Execute(ctx *dspgraph.ExecuteContext) {
	for _, out := range ctx.Outputs {
		for ch := range out.Channels {
			ctx.Parameters.Fill(ConstantValue, out.Channel(ch))
		}
	}
}

// Mixer sums all its inlets into a single outlet. Per-source levels are set
// with connection attenuation.
type Mixer struct{}

func newMixer(cfg Config) (Spec, error) {
	inputs := cfg.GetInt("inputs", 2)
	if inputs < 1 || inputs > 64 {
		return Spec{}, errors.New("mixer: inputs must be in [1, 64]")
	}

	return Spec{Kernel: Mixer{}, Inlets: inputs, Outlets: 1}, nil
}

func (Mixer) Initialize(*dspgraph.InitContext) error { return nil }
func (Mixer) Dispose()                               {}

func (Mixer) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}

	// outputs arrive silenced
	out := ctx.Outputs[0]
	for _, in := range ctx.Inputs {
		for ch := range min(in.Channels, out.Channels) {
			vecmath.AddBlockInPlace(out.Channel(ch), in.Channel(ch))
		}
	}
}

// Reset returns an updater that clears the internal signal state of a
// Lowpass or Delay.
func Reset() dspgraph.KernelUpdater {
	return dspgraph.UpdaterFunc(func(kernel dspgraph.AudioKernel) error {
		switch k := kernel.(type) {
		case *Lowpass:
			clear(k.state[:])
		case *Delay:
			k.clear()
		default:
			return fmt.Errorf("%w: %T has no state to reset", ErrWrongKernel, kernel)
		}

		return nil
	})
}
