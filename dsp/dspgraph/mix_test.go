package dspgraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantThroughAttenuatedPassthrough(t *testing.T) {
	t.Parallel()

	for _, mode := range []ExecutionMode{Synchronous, Jobified} {
		g := newTestGraph(t, 1, WithWorkers(4))

		b := g.CreateCommandBlock()
		a := b.CreateNode(passKernel{}, nil, nil)
		b.AddInletPort(a, 1, FormatMono)
		b.AddOutletPort(a, 1, FormatMono)
		src := b.CreateNode(&constKernel{value: 1}, nil, nil)
		b.AddOutletPort(src, 1, FormatMono)
		conn := b.Connect(src, 0, a, 0)
		b.SetAttenuation(conn, 0, 0.5)
		b.Connect(a, 0, g.RootNode(), 0)
		require.NoError(t, b.Complete())

		out := mix(t, g, 512, mode)
		require.Len(t, out, 512)

		for i, s := range out {
			require.InDelta(t, 0.5, s, 1e-7, "sample %d", i)
		}

		assert.Equal(t, uint64(512), g.DSPClock())
	}
}

func TestFloatKeysThroughGraph(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	n, _ := addSource(t, g, paramKernel{}, []ParameterDescription{{Name: "level"}})

	b := g.CreateCommandBlock()
	b.AddFloatKey(n, 0, 0, 0)
	b.AddFloatKey(n, 0, 48000, 1)
	require.NoError(t, b.Complete())

	out := mix(t, g, 512, Synchronous)
	assert.InDelta(t, 100.0/48000, out[100], 1e-12)

	v, err := g.ParameterValue(n, 0, 24000)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)
}

func TestAttenuationRamp(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)
	_, conn := addSource(t, g, &constKernel{value: 1}, nil)

	b := g.CreateCommandBlock()
	b.SetAttenuation(conn, 512, 0)
	require.NoError(t, b.Complete())

	out := mix(t, g, 512, Synchronous)
	for i, s := range out {
		require.InDelta(t, 1-float64(i)/512, s, 1e-12, "sample %d", i)
	}

	out = mix(t, g, 512, Synchronous)
	for _, s := range out {
		require.Zero(t, s)
	}
}

func TestAttenuationPerChannel(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 2)
	_, conn := addSource(t, g, &constKernel{value: 1}, nil)

	b := g.CreateCommandBlock()
	b.SetAttenuation(conn, 0, 0.5, 0.25)
	require.NoError(t, b.Complete())

	out := mix(t, g, 64, Jobified)
	for i := 0; i < len(out); i += 2 {
		require.Equal(t, 0.5, out[i])
		require.Equal(t, 0.25, out[i+1])
	}

	v, err := g.AttenuationValue(conn, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)
}

func TestExecutionModesProduceIdenticalOutput(t *testing.T) {
	t.Parallel()

	build := func(workers int) *Graph {
		g := newTestGraph(t, 2, WithWorkers(workers))

		b := g.CreateCommandBlock()
		var sources []NodeHandle

		for i := range 6 {
			n := b.CreateNode(paramKernel{}, []ParameterDescription{{Name: "level"}}, nil)
			b.AddOutletPort(n, 2, FormatStereo)
			b.AddFloatKey(n, 0, 0, float64(i)/7)
			b.AddFloatKey(n, 0, 3000, float64(6-i)/3)
			sources = append(sources, n)
		}

		bus := b.CreateNode(passKernel{}, nil, nil)
		b.AddInletPort(bus, 2, FormatStereo)
		b.AddOutletPort(bus, 2, FormatStereo)

		for i, n := range sources {
			c := b.Connect(n, 0, bus, 0)
			b.SetAttenuation(c, uint32(100*i+1), 0.1*float64(i+1), 0.3)
		}

		b.Connect(bus, 0, g.RootNode(), 0)
		b.Connect(sources[0], 0, g.RootNode(), 0)
		require.NoError(t, b.Complete())

		return g
	}

	inline := build(0)
	jobs := build(8)

	for range 10 {
		want := mix(t, inline, 512, Synchronous)
		got := mix(t, jobs, 512, Jobified)
		require.Equal(t, want, got)
	}
}

func TestScheduleFenceCounts(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	b := g.CreateCommandBlock()
	node := func() NodeHandle {
		n := b.CreateNode(passKernel{}, nil, nil)
		b.AddInletPort(n, 1, FormatMono)
		b.AddOutletPort(n, 1, FormatMono)

		return n
	}

	s, a, c, d := node(), node(), node(), node()
	b.Connect(s, 0, a, 0)
	b.Connect(s, 0, a, 0)
	b.Connect(s, 0, c, 0)
	b.Connect(a, 0, d, 0)
	b.Connect(c, 0, d, 0)
	b.Connect(d, 0, g.RootNode(), 0)
	orphan := node()
	require.NoError(t, b.Complete())

	mix(t, g, 128, Synchronous)

	sched := g.Schedule()
	require.Len(t, sched, 6)

	want := []struct {
		node  NodeHandle
		count int
		root  bool
	}{
		{s, 0, true},
		{a, 1, true},
		{c, 1, true},
		{d, 2, true},
		{g.RootNode(), 1, true},
		{orphan, 0, false},
	}

	for i, w := range want {
		assert.Equal(t, w.node, sched[i].Node, "entry %d", i)
		assert.Equal(t, i, sched[i].FenceIndex)
		assert.Equal(t, w.count, sched[i].FenceCount, "entry %d", i)
		assert.Equal(t, w.root, sched[i].ReachesRoot, "entry %d", i)
	}
}

func TestNodesWithNoOutputs(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	k := &countingKernel{}
	b := g.CreateCommandBlock()
	b.CreateNode(k, nil, nil)
	require.NoError(t, b.Complete())

	mix(t, g, 64, Synchronous)
	assert.Zero(t, k.calls.Load())

	mix(t, g, 64, Synchronous|ExecuteNodesWithNoOutputs)
	assert.Equal(t, int64(1), k.calls.Load())

	mix(t, g, 64, Jobified|ExecuteNodesWithNoOutputs)
	assert.Equal(t, int64(2), k.calls.Load())
}

func TestKernelPanicSilencesNode(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1, WithWorkers(2))

	faults := make(chan NodeFaultEvent, 4)
	_, err := AddNodeEventHandler(g, func(_ NodeHandle, ev NodeFaultEvent) { faults <- ev })
	require.NoError(t, err)

	k := &panicKernel{}
	n, _ := addSource(t, g, k, nil)
	_, _ = addSource(t, g, &constKernel{value: 0.25}, nil)

	out := mix(t, g, 256, Jobified)
	for _, s := range out {
		require.Equal(t, 0.25, s)
	}

	select {
	case ev := <-faults:
		require.Error(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no fault event")
	}

	b := g.CreateCommandBlock()
	b.UpdateAudioKernel(n, UpdaterFunc(func(kernel AudioKernel) error {
		kernel.(*panicKernel).healed = true
		return nil
	}))
	require.NoError(t, b.Complete())

	out = mix(t, g, 256, Jobified)
	for _, s := range out {
		require.Equal(t, 1.25, s)
	}
}

func TestInitializeFailureFaultsNode(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 1)

	faults := make(chan NodeHandle, 1)
	_, err := AddNodeEventHandler(g, func(n NodeHandle, _ NodeFaultEvent) { faults <- n })
	require.NoError(t, err)

	n, _ := addSource(t, g, failInitKernel{}, nil)
	out := mix(t, g, 64, Synchronous)

	for _, s := range out {
		require.Zero(t, s)
	}

	select {
	case got := <-faults:
		assert.Equal(t, n, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no fault event")
	}
}

func TestReadMixErrors(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 2)
	out := make([]float64, 1024)

	require.ErrorIs(t, g.ReadMix(out, 512), ErrNoMix)
	require.ErrorIs(t, g.BeginMix(0, Synchronous), ErrFrameCount)
	require.ErrorIs(t, g.BeginMix(513, Synchronous), ErrFrameCount)

	require.NoError(t, g.BeginMix(256, Synchronous))
	assert.Equal(t, MixReady, g.MixState())
	require.ErrorIs(t, g.ReadMix(out, 128), ErrFrameCount)
	require.ErrorIs(t, g.ReadMix(out[:100], 256), ErrFrameCount)
	require.NoError(t, g.ReadMix(out, 256))
	assert.Equal(t, MixIdle, g.MixState())
	require.ErrorIs(t, g.ReadMix(out, 256), ErrNoMix)

	// An unread mix is dropped by the next BeginMix.
	require.NoError(t, g.BeginMix(256, Jobified))
	require.NoError(t, g.BeginMix(256, Jobified))
	require.NoError(t, g.ReadMix(out, 256))
	assert.Equal(t, uint64(768), g.DSPClock())

	require.NoError(t, g.Dispose())
	require.ErrorIs(t, g.BeginMix(256, Synchronous), ErrGraphDisposed)
	require.ErrorIs(t, g.ReadMix(out, 256), ErrGraphDisposed)
}

func TestDisposeReleasesKernels(t *testing.T) {
	t.Parallel()

	g, err := CreateGraph(FormatMono, 1, 128, 48000, WithWorkers(2))
	require.NoError(t, err)

	k := &constKernel{value: 1}
	addSource(t, g, k, nil)
	mix(t, g, 128, Jobified)

	require.NoError(t, g.BeginMix(128, Jobified))
	require.NoError(t, g.Dispose())

	assert.True(t, k.disposed.Load())
	assert.Zero(t, g.Memory().InUse())
	assert.False(t, g.IsValidNode(g.RootNode()))
}

func TestDisposeWaitsForReadMix(t *testing.T) {
	t.Parallel()

	g, err := CreateGraph(FormatMono, 1, 128, 48000, WithWorkers(2))
	require.NoError(t, err)

	gate := make(chan struct{})
	addSource(t, g, &gateKernel{gate: gate, value: 0.5}, nil)
	require.NoError(t, g.BeginMix(128, Jobified))

	out := make([]float64, 128)
	readErr := make(chan error, 1)
	go func() { readErr <- g.ReadMix(out, 128) }()

	require.Eventually(t, func() bool { return g.readers.Load() == 1 }, 5*time.Second, time.Millisecond)

	disposeErr := make(chan error, 1)
	go func() { disposeErr <- g.Dispose() }()

	require.Eventually(t, g.disposed.Load, 5*time.Second, time.Millisecond)
	close(gate)

	require.NoError(t, <-readErr)
	require.NoError(t, <-disposeErr)

	for _, v := range out {
		require.InDelta(t, 0.5, v, 1e-12)
	}

	assert.Zero(t, g.Memory().InUse())
}

func TestCreateGraphValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		format     SoundFormat
		channels   int
		bufferSize int
		rate       float64
	}{
		{"format mismatch", FormatStereo, 1, 512, 48000},
		{"no channels", FormatRaw, 0, 512, 48000},
		{"buffer size", FormatMono, 1, 0, 48000},
		{"sample rate", FormatMono, 1, 512, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := CreateGraph(tt.format, tt.channels, tt.bufferSize, tt.rate)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}
