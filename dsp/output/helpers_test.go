package output

import (
	"testing"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, channels int) *dspgraph.Graph {
	t.Helper()

	format := dspgraph.FormatMono
	if channels == 2 {
		format = dspgraph.FormatStereo
	}

	g, err := dspgraph.CreateGraph(format, channels, 512, 48000, dspgraph.WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Dispose() })

	return g
}

// addNode creates a built-in kernel feeding the root and returns its node.
func addNode(t *testing.T, g *dspgraph.Graph, name string, cfg kernels.Config) dspgraph.NodeHandle {
	t.Helper()

	spec, err := kernels.DefaultRegistry().Build(name, cfg)
	require.NoError(t, err)

	b := g.CreateCommandBlock()
	node := spec.Create(b, g.Channels(), g.Format())
	b.Connect(node, 0, g.RootNode(), 0)
	require.NoError(t, b.Complete())

	return node
}

// addRamp adds a constant node whose output at clock n is n.
func addRamp(t *testing.T, g *dspgraph.Graph) {
	t.Helper()

	node := addNode(t, g, kernels.NameConstant, kernels.Config{})

	b := g.CreateCommandBlock()
	b.AddFloatKey(node, kernels.ConstantValue, 0, 0)
	b.AddFloatKey(node, kernels.ConstantValue, 1<<20, 1<<20)
	require.NoError(t, b.Complete())
}

func constant(v float64) kernels.Config {
	return kernels.Config{Num: map[string]float64{"value": v}}
}
