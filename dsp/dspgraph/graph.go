package dspgraph

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/handle"
	"github.com/cwbudde/algo-dspgraph/internal/jobsystem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Graph is an audio processing graph driven by BeginMix and ReadMix.
//
// Command blocks may be built and completed from any goroutine. BeginMix
// and ReadMix are meant to be called alternately by one driving goroutine,
// typically an audio callback; ReadMix must return before the next BeginMix.
type Graph struct {
	id         uuid.UUID
	format     SoundFormat
	channels   int
	bufferSize int
	sampleRate float64

	opts      Options
	logger    zerolog.Logger
	memory    *buffer.Allocator
	providers *ProviderRegistry
	metrics   *graphMetrics
	handlers  *eventHandlers

	// Control side, guarded by ctrlMu.
	ctrlMu   sync.Mutex
	nodes    *handle.Table[*topoNode]
	conns    *handle.Table[*topoConn]
	requests *handle.Table[*UpdateRequest]
	rootTopo *topoNode

	queue *commitQueue[CommandBlock]

	// Mixing side, guarded by mixMu and only mutated between mixes.
	mixMu     sync.Mutex
	live      []*node
	root      *node
	seq       uint64
	connCount int
	plan      []*planEntry
	dirty     bool
	pool      *jobsystem.Pool[job]
	poolSize  int
	last      *mixCycle

	cycle   atomic.Pointer[mixCycle]
	state   atomic.Int32
	clock   atomic.Uint64
	readers atomic.Int32

	events         chan nodeEvent
	wake           chan struct{}
	completed      *commitQueue[UpdateRequest]
	stop           chan struct{}
	dispatcherDone chan struct{}
	disposed       atomic.Bool
}

// CreateGraph creates a graph whose root node mixes channels channels of
// format at sampleRate, bufferSize frames at a time.
func CreateGraph(format SoundFormat, channels, bufferSize int, sampleRate float64, opts ...Option) (*Graph, error) {
	port := Port{Channels: channels, Format: format}
	if err := port.validate(); err != nil {
		return nil, err
	}

	if bufferSize <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", ErrInvalidParameter, bufferSize)
	}

	if !(sampleRate > 0) {
		return nil, fmt.Errorf("%w: sample rate %g", ErrInvalidParameter, sampleRate)
	}

	o := applyOptions(opts...)

	g := &Graph{
		id:             uuid.New(),
		format:         format,
		channels:       channels,
		bufferSize:     bufferSize,
		sampleRate:     sampleRate,
		opts:           o,
		memory:         o.Allocator,
		providers:      o.Providers,
		handlers:       newEventHandlers(),
		nodes:          handle.NewTable[*topoNode](64),
		conns:          handle.NewTable[*topoConn](64),
		requests:       handle.NewTable[*UpdateRequest](16),
		queue:          newCommitQueue(func(b *CommandBlock) *atomic.Pointer[CommandBlock] { return &b.next }),
		completed:      newCommitQueue(func(r *UpdateRequest) *atomic.Pointer[UpdateRequest] { return &r.next }),
		events:         make(chan nodeEvent, o.EventQueueSize),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		dispatcherDone: make(chan struct{}),
	}
	g.logger = o.Logger.With().Str("component", "dspgraph").Str("graph", g.id.String()).Logger()
	g.metrics = newGraphMetrics(o.Registerer, g)

	root := newNode(rootKernel{}, nil, nil)
	if err := root.addPort(g, port, true); err != nil {
		g.metrics.unregister()
		return nil, err
	}

	root.root = true
	g.rootTopo = &topoNode{
		rt:     root,
		state:  stateLive,
		root:   true,
		inlets: []Port{port},
	}
	g.rootTopo.handle = NodeHandle{g.nodes.Allocate(g.rootTopo)}
	root.handle = g.rootTopo.handle

	g.addNode(root)
	g.root = root

	go g.dispatchLoop()

	g.logger.Info().
		Str("format", format.String()).
		Int("channels", channels).
		Int("buffer_size", bufferSize).
		Float64("sample_rate", sampleRate).
		Int("workers", o.Workers).
		Msg("graph created")

	return g, nil
}

// Dispose waits for an in-flight mix, stops the workers, disposes every
// kernel and fails pending update requests. Later calls return
// ErrGraphDisposed.
func (g *Graph) Dispose() error {
	if !g.disposed.CompareAndSwap(false, true) {
		return ErrGraphDisposed
	}

	g.mixMu.Lock()

	if g.last != nil {
		<-g.last.done
	}

	// A ReadMix that got past its disposed check may still be copying the
	// root inlet.
	for g.readers.Load() > 0 {
		runtime.Gosched()
	}

	g.cycle.Store(nil)
	g.state.Store(int32(MixIdle))

	if g.pool != nil {
		g.pool.Stop()
		g.pool = nil
	}

	g.ctrlMu.Lock()

	pending := g.queue.drain(func(b *CommandBlock) {
		b.failRequests(ErrGraphDisposed)
		b.cmds = nil
	})

	for i := len(g.live) - 1; i >= 0; i-- {
		n := g.live[i]
		for _, c := range append([]*connection(nil), n.outConns...) {
			c.unlink(g)
		}

		n.release(g)
	}

	g.live, g.plan = nil, nil
	g.ctrlMu.Unlock()
	g.mixMu.Unlock()

	close(g.stop)
	<-g.dispatcherDone

	g.metrics.unregister()
	g.logger.Info().Int("discarded_blocks", pending).Uint64("dsp_clock", g.clock.Load()).Msg("graph disposed")

	return nil
}

// ID returns the graph instance id.
func (g *Graph) ID() uuid.UUID {
	return g.id
}

// RootNode returns the handle of the root node. The root has one inlet
// matching the graph output and cannot be released.
func (g *Graph) RootNode() NodeHandle {
	return g.rootTopo.handle
}

// DSPClock returns the sample clock of the next mix.
func (g *Graph) DSPClock() uint64 {
	return g.clock.Load()
}

// Format returns the output sound format.
func (g *Graph) Format() SoundFormat { return g.format }

// Channels returns the output channel count.
func (g *Graph) Channels() int { return g.channels }

// BufferSize returns the largest frame count of a mix.
func (g *Graph) BufferSize() int { return g.bufferSize }

// SampleRate returns the output sample rate.
func (g *Graph) SampleRate() float64 { return g.sampleRate }

// Providers returns the graph's sample provider registry.
func (g *Graph) Providers() *ProviderRegistry { return g.providers }

// Memory returns the allocator backing port buffers and kernel memory.
func (g *Graph) Memory() *buffer.Allocator { return g.memory }

// Logger returns the graph logger.
func (g *Graph) Logger() zerolog.Logger { return g.logger }

// NodeCount returns the number of committed nodes, including the root.
func (g *Graph) NodeCount() int {
	g.ctrlMu.Lock()
	defer g.ctrlMu.Unlock()

	count := 0

	g.nodes.Each(func(_ handle.Handle, n *topoNode) bool {
		if n.state == stateLive {
			count++
		}

		return true
	})

	return count
}

// ConnectionCount returns the number of committed connections.
func (g *Graph) ConnectionCount() int {
	g.ctrlMu.Lock()
	defer g.ctrlMu.Unlock()

	count := 0

	g.conns.Each(func(_ handle.Handle, c *topoConn) bool {
		if c.state == stateLive {
			count++
		}

		return true
	})

	return count
}

// IsValidNode reports whether h references a committed, unreleased node.
func (g *Graph) IsValidNode(h NodeHandle) bool {
	if g.disposed.Load() {
		return false
	}

	g.ctrlMu.Lock()
	defer g.ctrlMu.Unlock()

	n, ok := g.nodes.Get(h.Handle)

	return ok && n.state == stateLive
}

// IsValidConnection reports whether h references a committed, unreleased
// connection.
func (g *Graph) IsValidConnection(h ConnectionHandle) bool {
	if g.disposed.Load() {
		return false
	}

	g.ctrlMu.Lock()
	defer g.ctrlMu.Unlock()

	c, ok := g.conns.Get(h.Handle)

	return ok && c.state == stateLive
}

// ParameterValue evaluates parameter index of node at clock, as of the last
// BeginMix.
func (g *Graph) ParameterValue(node NodeHandle, index int, clock uint64) (float64, error) {
	tn, ok := g.nodes.Get(node.Handle)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHandle, node)
	}

	g.mixMu.Lock()
	defer g.mixMu.Unlock()

	if index < 0 || index >= len(tn.rt.params) {
		return 0, fmt.Errorf("%w: %s has no parameter %d", ErrInvalidParameter, node, index)
	}

	return tn.rt.params[index].ValueAt(clock), nil
}

// AttenuationValue evaluates the attenuation of conn for channel at clock,
// as of the last BeginMix.
func (g *Graph) AttenuationValue(conn ConnectionHandle, channel int, clock uint64) (float64, error) {
	tc, ok := g.conns.Get(conn.Handle)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHandle, conn)
	}

	g.mixMu.Lock()
	defer g.mixMu.Unlock()

	if channel < 0 {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidParameter, channel)
	}

	atten := tc.rt.atten

	return atten[channel%len(atten)].ValueAt(clock), nil
}

// addNode makes n part of the mix and initializes its kernel.
func (g *Graph) addNode(n *node) {
	g.seq++
	n.seq = g.seq
	n.ctx = ExecuteContext{SampleRate: g.sampleRate, graph: g, node: n}
	g.live = append(g.live, n)
	g.dirty = true
	g.metrics.nodes.Set(float64(len(g.live)))

	if err := g.initialize(n); err != nil {
		g.fault(n, err)
		return
	}

	n.initialized = true
}

func (g *Graph) initialize(n *node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dspgraph: kernel initialize panic: %v", r)
		}
	}()

	return n.kernel.Initialize(&InitContext{
		SampleRate: g.sampleRate,
		BufferSize: g.bufferSize,
		Memory:     g.memory,
	})
}

func (g *Graph) removeNode(n *node) {
	for _, conns := range n.inletConns {
		for _, c := range append([]*connection(nil), conns...) {
			g.removeConnection(c)
		}
	}

	for _, c := range append([]*connection(nil), n.outConns...) {
		g.removeConnection(c)
	}

	n.release(g)

	for i, x := range g.live {
		if x == n {
			g.live = append(g.live[:i], g.live[i+1:]...)
			break
		}
	}

	g.dirty = true
	g.metrics.nodes.Set(float64(len(g.live)))
}

func (g *Graph) addConnection(c *connection) {
	g.seq++
	c.seq = g.seq

	if err := c.link(g); err != nil {
		g.fault(c.in, err)
		return
	}

	g.connCount++
	g.dirty = true
	g.metrics.connections.Set(float64(g.connCount))
}

func (g *Graph) removeConnection(c *connection) {
	if c.scratch == nil {
		return
	}

	c.unlink(g)
	g.connCount--
	g.dirty = true
	g.metrics.connections.Set(float64(g.connCount))
}

// fault silences n and reports err as a NodeFaultEvent.
func (g *Graph) fault(n *node, err error) {
	n.faulted = true
	g.postEvent(n.handle, NodeFaultEvent{Err: err})
}

// rootKernel is the kernel of the root node. The root only mixes its
// inputs; ReadMix copies its inlet.
type rootKernel struct{}

func (rootKernel) Initialize(*InitContext) error { return nil }
func (rootKernel) Execute(*ExecuteContext)       {}
func (rootKernel) Dispose()                      {}
