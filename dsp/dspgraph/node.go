package dspgraph

import (
	"fmt"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-dspgraph/dsp/handle"
)

// NodeHandle references a node of a graph.
type NodeHandle struct{ handle.Handle }

// ConnectionHandle references a connection of a graph.
type ConnectionHandle struct{ handle.Handle }

// UpdateRequestHandle references an update request of a graph.
type UpdateRequestHandle struct{ handle.Handle }

func (h NodeHandle) String() string          { return formatHandle("node", h.Handle) }
func (h ConnectionHandle) String() string    { return formatHandle("connection", h.Handle) }
func (h UpdateRequestHandle) String() string { return formatHandle("request", h.Handle) }

func formatHandle(kind string, h handle.Handle) string {
	if h.IsZero() {
		return kind + "(nil)"
	}

	return fmt.Sprintf("%s(%d:%d)", kind, h.Index(), h.Generation())
}

// node is the mixing-side state of a node. After creation it is touched
// only by the apply step of BeginMix and by the node's own job.
type node struct {
	handle NodeHandle
	seq    uint64
	root   bool

	kernel      AudioKernel
	initialized bool
	faulted     bool

	inlets     []Port
	outlets    []Port
	inBufs     []*buffer.Buffer
	outBufs    []*buffer.Buffer
	inletConns [][]*connection
	outConns   []*connection

	params    []ParameterState
	providers [][]ProviderID
	updates   []*UpdateRequest

	ctx     ExecuteContext
	inputs  []SampleBuffer
	outputs []SampleBuffer
}

func newNode(kernel AudioKernel, params []ParameterDescription, slots []ProviderSlotDescription) *node {
	n := &node{
		kernel:    kernel,
		params:    make([]ParameterState, len(params)),
		providers: make([][]ProviderID, len(slots)),
	}

	for i, d := range params {
		n.params[i] = newParameterState(d)
	}

	for i, s := range slots {
		if s.Size > 0 {
			n.providers[i] = make([]ProviderID, s.Size)
		}
	}

	return n
}

func (n *node) addPort(g *Graph, p Port, inlet bool) error {
	buf, err := buffer.New(g.memory, p.Channels, g.bufferSize)
	if err != nil {
		return fmt.Errorf("dspgraph: allocate port buffer: %w", err)
	}

	if inlet {
		n.inlets = append(n.inlets, p)
		n.inBufs = append(n.inBufs, buf)
		n.inletConns = append(n.inletConns, nil)
		n.inputs = append(n.inputs, SampleBuffer{Port: p, buf: buf})
	} else {
		n.outlets = append(n.outlets, p)
		n.outBufs = append(n.outBufs, buf)
		n.outputs = append(n.outputs, SampleBuffer{Port: p, buf: buf})
	}

	return nil
}

func (n *node) release(g *Graph) {
	if n.kernel != nil && n.initialized {
		n.kernel.Dispose()
	}

	n.kernel = nil

	for _, b := range n.inBufs {
		_ = b.Release()
	}

	for _, b := range n.outBufs {
		_ = b.Release()
	}

	n.inBufs, n.outBufs = nil, nil
	n.inputs, n.outputs = nil, nil

	for _, req := range n.updates {
		g.completeRequest(req, fmt.Errorf("%w: %s released", ErrInvalidHandle, n.handle))
	}

	n.updates = nil
}

func (n *node) silence(frames int) {
	for _, b := range n.outBufs {
		b.Zero(frames)
	}
}
