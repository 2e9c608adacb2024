package kernels

import (
	"fmt"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// PlayerGain is the parameter index of the player's output gain.
const PlayerGain = 0

// PlayerSource is the provider slot the player reads from.
const PlayerSource = 0

// Seeker is implemented by sample providers that support repositioning.
type Seeker interface {
	Seek(frame int)
}

// PlayerEndedEvent is posted once when the source provider runs dry.
type PlayerEndedEvent struct {
	Clock uint64
}

// Player streams the provider in its source slot to its outlet. Provider
// channels are mapped onto output channels modulo the provider's channel
// count. Provider sample rates are not converted.
type Player struct {
	mem     *buffer.Allocator
	scratch *buffer.Block
	gain    *buffer.Block

	seek  int
	ended bool
}

func newPlayer(cfg Config) (Spec, error) {
	return Spec{
		Kernel:  &Player{seek: -1},
		Params:  []dspgraph.ParameterDescription{{Name: "gain", Min: 0, Max: 16, Default: cfg.GetNum("gain", 1)}},
		Slots:   []dspgraph.ProviderSlotDescription{{Name: "source", Size: 1}},
		Outlets: 1,
	}, nil
}

func (k *Player) Initialize(ctx *dspgraph.InitContext) error {
	scratch, err := ctx.Memory.AllocateFloats(ctx.BufferSize * dspgraph.MaxPortChannels)
	if err != nil {
		return err
	}

	gain, err := ctx.Memory.AllocateFloats(ctx.BufferSize)
	if err != nil {
		_ = ctx.Memory.Free(scratch)
		return err
	}

	k.mem, k.scratch, k.gain = ctx.Memory, scratch, gain

	return nil
}

func (k *Player) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Outputs) == 0 {
		return
	}

	p, ok := ctx.Providers.Provider(PlayerSource, 0)
	if !ok {
		return
	}

	if k.seek >= 0 {
		if s, ok := p.(Seeker); ok {
			s.Seek(k.seek)
		}

		k.seek = -1
		k.ended = false
	}

	channels := p.ChannelCount()
	if channels <= 0 || channels > dspgraph.MaxPortChannels {
		ctx.Fail(fmt.Errorf("player: provider has %d channels", channels))
		return
	}

	samples := k.scratch.Floats()[:ctx.Frames*channels]
	n := p.Read(samples)

	if n < ctx.Frames && !k.ended {
		k.ended = true
		ctx.PostEvent(PlayerEndedEvent{Clock: ctx.DSPClock + uint64(n)})
	}

	out := ctx.Outputs[0]
	for ch := range out.Channels {
		dst := out.Channel(ch)
		src := ch % channels

		for i := range n {
			dst[i] = samples[i*channels+src]
		}
	}

	if level, ok := ctx.Parameters.Constant(PlayerGain); ok {
		if level != 1 {
			for ch := range out.Channels {
				vecmath.ScaleBlockInPlace(out.Channel(ch), level)
			}
		}

		return
	}

	gain := k.gain.Floats()[:ctx.Frames]
	ctx.Parameters.Fill(PlayerGain, gain)

	for ch := range out.Channels {
		vecmath.MulBlockInPlace(out.Channel(ch), gain)
	}
}

func (k *Player) Dispose() {
	if k.scratch != nil {
		_ = k.mem.Free(k.scratch)
		_ = k.mem.Free(k.gain)
		k.scratch, k.gain = nil, nil
	}
}

// Seek returns an updater that repositions a Player's source to frame on
// its next mix. Sources that do not implement Seeker are left untouched.
func Seek(frame int) dspgraph.KernelUpdater {
	return dspgraph.UpdaterFunc(func(kernel dspgraph.AudioKernel) error {
		player, ok := kernel.(*Player)
		if !ok {
			return fmt.Errorf("%w: %T is not a player", ErrWrongKernel, kernel)
		}

		if frame < 0 {
			return fmt.Errorf("player: negative seek position %d", frame)
		}

		player.seek = frame

		return nil
	})
}
