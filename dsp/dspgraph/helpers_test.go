package dspgraph

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// constKernel writes a constant to every output channel.
type constKernel struct {
	value    float64
	disposed atomic.Bool
}

func (k *constKernel) Initialize(*InitContext) error { return nil }
func (k *constKernel) Dispose()                      { k.disposed.Store(true) }

func (k *constKernel) Execute(ctx *ExecuteContext) {
	for _, out := range ctx.Outputs {
		for ch := range out.Channels {
			s := out.Channel(ch)
			for i := range s {
				s[i] = k.value
			}
		}
	}
}

// passKernel copies inlet 0 to outlet 0.
type passKernel struct{}

func (passKernel) Initialize(*InitContext) error { return nil }
func (passKernel) Dispose()                      {}

func (passKernel) Execute(ctx *ExecuteContext) {
	if len(ctx.Inputs) == 0 || len(ctx.Outputs) == 0 {
		return
	}

	in, out := ctx.Inputs[0], ctx.Outputs[0]
	for ch := range out.Channels {
		copy(out.Channel(ch), in.Channel(ch))
	}
}

// paramKernel writes parameter 0 to its outputs sample by sample.
type paramKernel struct{}

func (paramKernel) Initialize(*InitContext) error { return nil }
func (paramKernel) Dispose()                      {}

func (paramKernel) Execute(ctx *ExecuteContext) {
	for _, out := range ctx.Outputs {
		for ch := range out.Channels {
			ctx.Parameters.Fill(0, out.Channel(ch))
		}
	}
}

// panicKernel panics in Execute until healed by an update.
type panicKernel struct {
	healed bool
}

func (k *panicKernel) Initialize(*InitContext) error { return nil }
func (k *panicKernel) Dispose()                      {}

func (k *panicKernel) Execute(ctx *ExecuteContext) {
	if !k.healed {
		panic("boom")
	}

	for _, out := range ctx.Outputs {
		for ch := range out.Channels {
			s := out.Channel(ch)
			for i := range s {
				s[i] = 1
			}
		}
	}
}

// gateKernel writes value once gate is closed.
type gateKernel struct {
	gate  <-chan struct{}
	value float64
}

func (k *gateKernel) Initialize(*InitContext) error { return nil }
func (k *gateKernel) Dispose()                      {}

func (k *gateKernel) Execute(ctx *ExecuteContext) {
	<-k.gate

	for _, out := range ctx.Outputs {
		for ch := range out.Channels {
			s := out.Channel(ch)
			for i := range s {
				s[i] = k.value
			}
		}
	}
}

// failInitKernel fails Initialize.
type failInitKernel struct{}

func (failInitKernel) Initialize(*InitContext) error { return errors.New("no init") }
func (failInitKernel) Execute(*ExecuteContext)       {}
func (failInitKernel) Dispose()                      {}

// countingKernel counts Execute calls and posts its count as an event.
type countingKernel struct {
	calls atomic.Int64
}

func (k *countingKernel) Initialize(*InitContext) error { return nil }
func (k *countingKernel) Dispose()                      {}

func (k *countingKernel) Execute(ctx *ExecuteContext) {
	ctx.PostEvent(countEvent{n: k.calls.Add(1)})
}

type countEvent struct {
	n int64
}

var gainParam = []ParameterDescription{{Name: "gain", Min: 0, Max: 10, Default: 0}}

func newTestGraph(t *testing.T, channels int, opts ...Option) *Graph {
	t.Helper()

	format := FormatMono
	if channels == 2 {
		format = FormatStereo
	}

	g, err := CreateGraph(format, channels, 512, 48000, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = g.Dispose() })

	return g
}

// addSource creates a node with one outlet running kernel and connects it to
// the root.
func addSource(t *testing.T, g *Graph, kernel AudioKernel, params []ParameterDescription) (NodeHandle, ConnectionHandle) {
	t.Helper()

	b := g.CreateCommandBlock()
	n := b.CreateNode(kernel, params, nil)
	b.AddOutletPort(n, g.Channels(), g.Format())
	c := b.Connect(n, 0, g.RootNode(), 0)
	require.NoError(t, b.Complete())

	return n, c
}

func mix(t *testing.T, g *Graph, frames int, mode ExecutionMode) []float64 {
	t.Helper()

	out := make([]float64, frames*g.Channels())
	require.NoError(t, g.BeginMix(frames, mode))
	require.NoError(t, g.ReadMix(out, frames))

	return out
}
