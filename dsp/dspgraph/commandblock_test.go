package dspgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBlockCreateAndReleaseSameBlock(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	n := b.CreateNode(&constKernel{value: 1}, nil, nil)
	b.AddOutletPort(n, 1, FormatMono)
	b.ReleaseNode(n)
	require.NoError(t, b.Complete())

	assert.False(t, g.IsValidNode(n))
	assert.Equal(t, 1, g.NodeCount())

	out := mix(t, g, 512, Synchronous)
	for _, s := range out {
		require.Zero(t, s)
	}

	assert.Len(t, g.Schedule(), 1)
}

func TestCommandBlockAtomicOnFailure(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	a := b.CreateNode(passKernel{}, nil, nil)
	b.AddOutletPort(a, 1, FormatMono)
	b.Connect(a, 0, g.RootNode(), 0)
	b.AddInletPort(a, 1, FormatMono)

	err := b.Complete()
	require.ErrorIs(t, err, ErrInvalidBlock)
	require.ErrorIs(t, err, ErrInvalidTopology)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.Index)
	assert.Equal(t, "AddInletPort", cmdErr.Op)

	assert.False(t, g.IsValidNode(a))
	assert.Equal(t, 1, g.NodeCount())
	assert.Zero(t, g.ConnectionCount())
}

func TestCommandBlockCompleteTwice(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	require.NoError(t, b.Complete())
	require.ErrorIs(t, b.Complete(), ErrInvalidHandle)
	require.ErrorIs(t, b.Complete(), ErrBlockCompleted)

	assert.True(t, b.CreateNode(passKernel{}, nil, nil).IsZero())
}

func TestCommandBlockStaleHandle(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	n, _ := addSource(t, g, &constKernel{value: 1}, nil)

	b := g.CreateCommandBlock()
	b.ReleaseNode(n)
	require.NoError(t, b.Complete())
	require.False(t, g.IsValidNode(n))

	b = g.CreateCommandBlock()
	b.SetFloat(n, 0, 1, 0)
	err := b.Complete()
	require.ErrorIs(t, err, ErrInvalidBlock)
	require.ErrorIs(t, err, ErrInvalidHandle)
}

func TestCommandBlockReleaseRoot(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	b.ReleaseNode(g.RootNode())
	require.ErrorIs(t, b.Complete(), ErrInvalidTopology)
	assert.True(t, g.IsValidNode(g.RootNode()))
}

func TestCommandBlockPendingNodeOfOtherBlock(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	first := g.CreateCommandBlock()
	n := first.CreateNode(passKernel{}, nil, nil)

	second := g.CreateCommandBlock()
	second.AddOutletPort(n, 1, FormatMono)
	require.ErrorIs(t, second.Complete(), ErrInvalidHandle)

	require.NoError(t, first.Complete())
	assert.True(t, g.IsValidNode(n))
}

func TestConnectRejectsCycles(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	a := b.CreateNode(passKernel{}, nil, nil)
	b.AddInletPort(a, 1, FormatMono)
	b.AddOutletPort(a, 1, FormatMono)
	bn := b.CreateNode(passKernel{}, nil, nil)
	b.AddInletPort(bn, 1, FormatMono)
	b.AddOutletPort(bn, 1, FormatMono)
	require.NoError(t, b.Complete())

	self := g.CreateCommandBlock()
	self.Connect(a, 0, a, 0)
	require.ErrorIs(t, self.Complete(), ErrCyclicGraph)
	assert.Zero(t, g.ConnectionCount())

	ab := g.CreateCommandBlock()
	edge := ab.Connect(a, 0, bn, 0)
	require.NoError(t, ab.Complete())
	require.Equal(t, 1, g.ConnectionCount())

	ba := g.CreateCommandBlock()
	ba.Connect(bn, 0, a, 0)
	require.ErrorIs(t, ba.Complete(), ErrCyclicGraph)
	assert.Equal(t, 1, g.ConnectionCount())
	assert.True(t, g.IsValidConnection(edge))

	// A cycle closed within one block is rejected as a whole.
	both := g.CreateCommandBlock()
	both.Disconnect(edge)
	both.Connect(bn, 0, a, 0)
	both.Connect(a, 0, bn, 0)
	require.ErrorIs(t, both.Complete(), ErrCyclicGraph)
	assert.Equal(t, 1, g.ConnectionCount())
	assert.True(t, g.IsValidConnection(edge))
}

func TestConnectValidatesPorts(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 2)

	b := g.CreateCommandBlock()
	mono := b.CreateNode(passKernel{}, nil, nil)
	b.AddOutletPort(mono, 1, FormatMono)
	require.NoError(t, b.Complete())

	tests := []struct {
		name    string
		outPort int
		inPort  int
	}{
		{"channel mismatch", 0, 0},
		{"bad outlet", 1, 0},
		{"bad inlet", 0, 1},
		{"negative", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := g.CreateCommandBlock()
			b.Connect(mono, tt.outPort, g.RootNode(), tt.inPort)
			require.ErrorIs(t, b.Complete(), ErrInvalidTopology)
		})
	}
}

func TestPortsFrozenAfterConnect(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	n, conn := addSource(t, g, &constKernel{value: 1}, nil)

	b := g.CreateCommandBlock()
	b.Disconnect(conn)
	require.NoError(t, b.Complete())

	b = g.CreateCommandBlock()
	b.AddOutletPort(n, 1, FormatMono)
	require.ErrorIs(t, b.Complete(), ErrInvalidTopology)
}

func TestAddFloatKeyOrder(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	n, _ := addSource(t, g, paramKernel{}, gainParam)

	b := g.CreateCommandBlock()
	b.AddFloatKey(n, 0, 100, 1)
	b.AddFloatKey(n, 0, 100, 2)
	require.NoError(t, b.Complete())

	b = g.CreateCommandBlock()
	b.AddFloatKey(n, 0, 50, 1)
	require.ErrorIs(t, b.Complete(), ErrOutOfOrderKeyframe)

	// SetFloat restarts the trajectory, so earlier keys are legal again.
	b = g.CreateCommandBlock()
	b.SetFloat(n, 0, 1, 0)
	b.AddFloatKey(n, 0, 50, 1)
	require.NoError(t, b.Complete())
}

func TestCommandBlockParameterIndex(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	n, _ := addSource(t, g, paramKernel{}, gainParam)

	b := g.CreateCommandBlock()
	b.SetFloat(n, 1, 1, 0)
	require.ErrorIs(t, b.Complete(), ErrInvalidParameter)

	b = g.CreateCommandBlock()
	b.SetFloat(n, 0, 1, 0)
	b.SustainFloat(n, 0, 10)
	require.NoError(t, b.Complete())
}

func TestAttenuationDimension(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 2)
	_, conn := addSource(t, g, &constKernel{value: 1}, nil)

	b := g.CreateCommandBlock()
	b.SetAttenuation(conn, 0)
	require.ErrorIs(t, b.Complete(), ErrAttenuationDimension)

	b = g.CreateCommandBlock()
	b.SetAttenuation(conn, 0, 0.5, 0.25)
	require.NoError(t, b.Complete())

	b = g.CreateCommandBlock()
	b.AddAttenuationKey(conn, 100, 1)
	require.ErrorIs(t, b.Complete(), ErrAttenuationDimension)

	b = g.CreateCommandBlock()
	b.AddAttenuationKey(conn, 100, 1, 1)
	b.SustainAttenuation(conn, 200)
	require.NoError(t, b.Complete())
}

func TestCommandBlockCancel(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	n := b.CreateNode(passKernel{}, nil, nil)
	req := b.CreateUpdateRequest(n, UpdaterFunc(func(AudioKernel) error { return nil }), nil)
	b.Cancel()

	require.ErrorIs(t, b.Complete(), ErrBlockCompleted)
	assert.False(t, g.IsValidNode(n))
	require.True(t, req.Fence().Signaled())
	require.ErrorIs(t, req.Err(), ErrInvalidBlock)
	require.NoError(t, req.Dispose())
}

func TestCommandBlockInvalidArguments(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	tests := []struct {
		name  string
		build func(b *CommandBlock)
	}{
		{"nil kernel", func(b *CommandBlock) { b.CreateNode(nil, nil, nil) }},
		{"bad description", func(b *CommandBlock) {
			b.CreateNode(passKernel{}, []ParameterDescription{{Name: "x", Min: 1, Max: 0}}, nil)
		}},
		{"bad port", func(b *CommandBlock) {
			n := b.CreateNode(passKernel{}, nil, nil)
			b.AddOutletPort(n, 3, FormatStereo)
		}},
		{"nil updater", func(b *CommandBlock) {
			n := b.CreateNode(passKernel{}, nil, nil)
			b.UpdateAudioKernel(n, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := g.CreateCommandBlock()
			tt.build(b)

			err := b.Complete()
			require.ErrorIs(t, err, ErrInvalidBlock)
			require.ErrorIs(t, err, ErrInvalidParameter)
			assert.True(t, errors.Is(err, ErrInvalidParameter))
		})
	}

	assert.Equal(t, 1, g.NodeCount())
}

func TestCompleteAfterDispose(t *testing.T) {
	t.Parallel()

	g, err := CreateGraph(FormatMono, 1, 64, 48000)
	require.NoError(t, err)

	b := g.CreateCommandBlock()
	b.CreateNode(passKernel{}, nil, nil)

	require.NoError(t, g.Dispose())
	require.ErrorIs(t, b.Complete(), ErrGraphDisposed)
	require.ErrorIs(t, g.Dispose(), ErrGraphDisposed)
}
