package dspgraph

import (
	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
)

// AudioKernel is the signal processing routine of a node.
//
// Initialize runs once when the node's creating block is applied, Execute
// once per mix on a job goroutine, and Dispose when the node is released or
// the graph disposed. A kernel is only ever called from one goroutine at a
// time. Execute must not block; a panic silences the node and is reported as
// a NodeFaultEvent.
type AudioKernel interface {
	Initialize(ctx *InitContext) error
	Execute(ctx *ExecuteContext)
	Dispose()
}

// KernelUpdater mutates a node's kernel state outside its Execute call.
// Update runs on the node's job, so it is ordered with the node's processing
// and may read or write kernel fields directly.
type KernelUpdater interface {
	Update(kernel AudioKernel) error
}

// UpdaterFunc adapts a function to KernelUpdater.
type UpdaterFunc func(kernel AudioKernel) error

func (f UpdaterFunc) Update(kernel AudioKernel) error {
	return f(kernel)
}

// InitContext is passed to AudioKernel.Initialize.
type InitContext struct {
	SampleRate float64
	BufferSize int
	// Memory is the graph allocator. Kernels free what they allocate in
	// Dispose.
	Memory *buffer.Allocator
}

// SampleBuffer is one port's audio for the current mix.
type SampleBuffer struct {
	Port
	buf    *buffer.Buffer
	frames int
}

// Channel returns the samples of channel ch for the current mix.
func (b SampleBuffer) Channel(ch int) []float64 {
	return b.buf.Channel(ch)[:b.frames]
}

// Frames returns the number of frames in the current mix.
func (b SampleBuffer) Frames() int {
	return b.frames
}

// Zero silences the buffer.
func (b SampleBuffer) Zero() {
	b.buf.Zero(b.frames)
}

// ExecuteContext is passed to AudioKernel.Execute. It is only valid for the
// duration of the call. Outputs are silenced before Execute runs.
type ExecuteContext struct {
	// DSPClock is the sample clock of the first frame of this mix.
	DSPClock   uint64
	SampleRate float64
	Frames     int

	Inputs     []SampleBuffer
	Outputs    []SampleBuffer
	Parameters ParameterReader
	Providers  ProviderReader

	graph *Graph
	node  *node
	err   error
}

// PostEvent queues payload for the graph's event handlers registered for
// the payload's type. It never blocks and reports false if the event was
// dropped because the queue is full.
func (c *ExecuteContext) PostEvent(payload any) bool {
	return c.graph.postEvent(c.node.handle, payload)
}

// Fail marks the node faulted. Its outputs are silenced for this and every
// later mix until a kernel update succeeds.
func (c *ExecuteContext) Fail(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// Node returns the handle of the executing node.
func (c *ExecuteContext) Node() NodeHandle {
	return c.node.handle
}
