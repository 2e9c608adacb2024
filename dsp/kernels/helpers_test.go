package kernels

import (
	"testing"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/stretchr/testify/require"
)

const testRate = 48000

func newTestGraph(t *testing.T, channels int) *dspgraph.Graph {
	t.Helper()

	format := dspgraph.FormatMono
	if channels == 2 {
		format = dspgraph.FormatStereo
	}

	g, err := dspgraph.CreateGraph(format, channels, 512, testRate, dspgraph.WithWorkers(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Dispose() })

	return g
}

func build(t *testing.T, name string, cfg Config) Spec {
	t.Helper()

	spec, err := DefaultRegistry().Build(name, cfg)
	require.NoError(t, err)

	return spec
}

// chain creates the specs in series, the last one feeding the root.
func chain(t *testing.T, g *dspgraph.Graph, specs ...Spec) []dspgraph.NodeHandle {
	t.Helper()

	b := g.CreateCommandBlock()
	nodes := make([]dspgraph.NodeHandle, len(specs))

	for i, s := range specs {
		nodes[i] = s.Create(b, g.Channels(), g.Format())
		if i > 0 {
			b.Connect(nodes[i-1], 0, nodes[i], 0)
		}
	}

	b.Connect(nodes[len(nodes)-1], 0, g.RootNode(), 0)
	require.NoError(t, b.Complete())

	return nodes
}

func render(t *testing.T, g *dspgraph.Graph, frames int) []float64 {
	t.Helper()

	out := make([]float64, frames*g.Channels())
	require.NoError(t, g.BeginMix(frames, dspgraph.Synchronous))
	require.NoError(t, g.ReadMix(out, frames))

	return out
}

// collect registers a handler for events of type T and returns the channel
// they are delivered on.
func collect[T any](t *testing.T, g *dspgraph.Graph) <-chan T {
	t.Helper()

	ch := make(chan T, 64)
	_, err := dspgraph.AddNodeEventHandler(g, func(_ dspgraph.NodeHandle, ev T) {
		ch <- ev
	})
	require.NoError(t, err)

	return ch
}

func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		var zero T
		t.Fatalf("no %T delivered", zero)

		return zero
	}
}
