package kernels

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
)

// Delay parameter indices.
const (
	DelayTime     = 0
	DelayFeedback = 1
	DelayMix      = 2
)

// Delay is a feedback delay with a fractional, automatable delay time. Its
// lines are allocated from the graph allocator at Initialize, sized by the
// max_time setting.
type Delay struct {
	channels int
	maxTime  float64

	mem      *buffer.Allocator
	lines    *buffer.Block
	scratch  *buffer.Block
	size     int
	writePos int
}

func newDelay(cfg Config) (Spec, error) {
	maxTime := cfg.GetNum("max_time", 1)
	if maxTime <= 0 || maxTime > 60 {
		return Spec{}, errors.New("delay: max_time must be in (0, 60]")
	}

	return Spec{
		Kernel: &Delay{channels: cfg.channels(), maxTime: maxTime},
		Params: []dspgraph.ParameterDescription{
			{Name: "time", Min: 0, Max: maxTime, Default: min(cfg.GetNum("time", 0.25), maxTime)},
			{Name: "feedback", Min: -0.99, Max: 0.99, Default: cfg.GetNum("feedback", 0.3)},
			{Name: "mix", Min: 0, Max: 1, Default: cfg.GetNum("mix", 0.5)},
		},
		Inlets:  1,
		Outlets: 1,
	}, nil
}

func (k *Delay) Initialize(ctx *dspgraph.InitContext) error {
	// Two guard samples for the interpolated read at max_time.
	k.size = int(math.Ceil(k.maxTime*ctx.SampleRate)) + 2

	lines, err := ctx.Memory.AllocateFloats(k.size * k.channels)
	if err != nil {
		return err
	}

	scratch, err := ctx.Memory.AllocateFloats(3 * ctx.BufferSize)
	if err != nil {
		_ = ctx.Memory.Free(lines)
		return err
	}

	k.mem, k.lines, k.scratch = ctx.Memory, lines, scratch
	k.clear()

	return nil
}

func (k *Delay) Execute(ctx *dspgraph.ExecuteContext) {
	if len(ctx.Inputs) == 0 || len(ctx.Outputs) == 0 {
		return
	}

	frames := ctx.Frames
	scratch := k.scratch.Floats()
	times := scratch[:frames]
	feedback := scratch[frames : 2*frames]
	mix := scratch[2*frames : 3*frames]

	ctx.Parameters.Fill(DelayTime, times)
	ctx.Parameters.Fill(DelayFeedback, feedback)
	ctx.Parameters.Fill(DelayMix, mix)

	maxDelay := float64(k.size - 2)
	for i, t := range times {
		times[i] = min(max(t*ctx.SampleRate, 1), maxDelay)
	}

	in, out := ctx.Inputs[0], ctx.Outputs[0]
	channels := min(in.Channels, out.Channels, k.channels)
	lines := k.lines.Floats()

	for ch := range channels {
		line := lines[ch*k.size : (ch+1)*k.size]
		src, dst := in.Channel(ch), out.Channel(ch)
		pos := k.writePos

		for i, x := range src {
			delayed := k.read(line, pos, times[i])
			line[pos] = x + feedback[i]*delayed
			dst[i] = x + mix[i]*(delayed-x)

			pos++
			if pos == k.size {
				pos = 0
			}
		}
	}

	k.writePos = (k.writePos + frames) % k.size
}

// read returns the sample written delay samples before pos, linearly
// interpolated.
func (k *Delay) read(line []float64, pos int, delay float64) float64 {
	whole := math.Floor(delay)
	frac := delay - whole

	i0 := pos - int(whole)
	if i0 < 0 {
		i0 += k.size
	}

	i1 := i0 - 1
	if i1 < 0 {
		i1 += k.size
	}

	return line[i0] + frac*(line[i1]-line[i0])
}

func (k *Delay) clear() {
	if k.lines != nil {
		clear(k.lines.Floats())
	}

	k.writePos = 0
}

func (k *Delay) Dispose() {
	if k.lines != nil {
		_ = k.mem.Free(k.lines)
		_ = k.mem.Free(k.scratch)
		k.lines, k.scratch = nil, nil
	}
}
