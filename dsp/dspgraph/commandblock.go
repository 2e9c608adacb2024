package dspgraph

import (
	"fmt"
	"math"
	"sync/atomic"
)

// CommandBlock records graph mutations and commits them atomically.
//
// Command methods never fail immediately. The first failing command is
// recorded and reported by Complete, which then applies nothing. Handles
// returned by CreateNode and Connect are usable by later commands of the
// same block and become visible to other blocks once Complete succeeds.
//
// A CommandBlock is not safe for concurrent use.
type CommandBlock struct {
	g    *Graph
	cmds []command
	err  *CommandError
	done bool

	nodes    []*topoNode
	conns    []*topoConn
	requests []*UpdateRequest

	next atomic.Pointer[CommandBlock]
}

// CreateCommandBlock starts a new command block.
func (g *Graph) CreateCommandBlock() *CommandBlock {
	return &CommandBlock{g: g}
}

// Len returns the number of recorded commands.
func (b *CommandBlock) Len() int {
	return len(b.cmds)
}

// Err returns the first recorded command error, if any.
func (b *CommandBlock) Err() error {
	if b.err == nil {
		return nil
	}

	return b.err
}

func (b *CommandBlock) fail(op string, err error) {
	if b.err == nil {
		b.err = &CommandError{Index: len(b.cmds), Op: op, Err: err}
	}
}

func (b *CommandBlock) push(c command) {
	b.cmds = append(b.cmds, c)
}

func (b *CommandBlock) checkNode(op string, h NodeHandle) bool {
	if !b.g.nodes.IsValid(h.Handle) {
		b.fail(op, fmt.Errorf("%w: %s", ErrInvalidHandle, h))
		return false
	}

	return true
}

func (b *CommandBlock) checkConn(op string, h ConnectionHandle) bool {
	if !b.g.conns.IsValid(h.Handle) {
		b.fail(op, fmt.Errorf("%w: %s", ErrInvalidHandle, h))
		return false
	}

	return true
}

func (b *CommandBlock) checkValue(op string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.fail(op, fmt.Errorf("%w: value %g", ErrInvalidParameter, v))
		return false
	}

	return true
}

// CreateNode adds a node running kernel with the given parameters and
// sample provider slots. The node starts without ports.
func (b *CommandBlock) CreateNode(kernel AudioKernel, params []ParameterDescription, slots []ProviderSlotDescription) NodeHandle {
	const op = "CreateNode"

	if b.done {
		return NodeHandle{}
	}

	if kernel == nil {
		b.fail(op, fmt.Errorf("%w: nil kernel", ErrInvalidParameter))
	}

	for _, d := range params {
		if err := d.validate(); err != nil {
			b.fail(op, err)
		}
	}

	rt := newNode(kernel, params, slots)
	tn := &topoNode{
		rt:       rt,
		keys:     make([]keyCursor, len(params)),
		slots:    append([]ProviderSlotDescription(nil), slots...),
		slotLens: make([]int, len(slots)),
	}

	for i, s := range slots {
		tn.slotLens[i] = max(s.Size, 0)
	}

	h := NodeHandle{b.g.nodes.Allocate(tn)}
	tn.handle, rt.handle = h, h
	b.nodes = append(b.nodes, tn)
	b.push(&createNodeCmd{tn: tn})

	return h
}

// ReleaseNode destroys node and every connection attached to it.
func (b *CommandBlock) ReleaseNode(node NodeHandle) {
	if b.done || !b.checkNode("ReleaseNode", node) {
		return
	}

	b.push(&releaseNodeCmd{h: node})
}

// AddInletPort appends an inlet to node. Ports cannot be added once the
// node has been connected.
func (b *CommandBlock) AddInletPort(node NodeHandle, channels int, format SoundFormat) {
	b.addPort(node, Port{Channels: channels, Format: format}, true)
}

// AddOutletPort appends an outlet to node. Ports cannot be added once the
// node has been connected.
func (b *CommandBlock) AddOutletPort(node NodeHandle, channels int, format SoundFormat) {
	b.addPort(node, Port{Channels: channels, Format: format}, false)
}

func (b *CommandBlock) addPort(node NodeHandle, p Port, inlet bool) {
	c := &addPortCmd{h: node, port: p, inlet: inlet}
	if b.done || !b.checkNode(c.op(), node) {
		return
	}

	if err := p.validate(); err != nil {
		b.fail(c.op(), err)
		return
	}

	b.push(c)
}

// SetFloat ramps parameter index of node linearly to value over length
// samples, starting at the mix that applies the block. A zero length sets
// the value immediately. Pending keyframes of the parameter are dropped.
func (b *CommandBlock) SetFloat(node NodeHandle, index int, value float64, length uint32) {
	const op = "SetFloat"

	if b.done || !b.checkNode(op, node) || !b.checkValue(op, value) {
		return
	}

	b.push(&setFloatCmd{h: node, index: index, value: value, length: length})
}

// AddFloatKey adds a keyframe to parameter index of node. Keyframes of one
// parameter must be added with non-decreasing clocks.
func (b *CommandBlock) AddFloatKey(node NodeHandle, index int, clock uint64, value float64) {
	const op = "AddFloatKey"

	if b.done || !b.checkNode(op, node) || !b.checkValue(op, value) {
		return
	}

	b.push(&addFloatKeyCmd{h: node, index: index, key: Keyframe{Clock: clock, Value: value}})
}

// SustainFloat drops the keyframes of parameter index after clock and holds
// the value the parameter has at clock.
func (b *CommandBlock) SustainFloat(node NodeHandle, index int, clock uint64) {
	if b.done || !b.checkNode("SustainFloat", node) {
		return
	}

	b.push(&sustainFloatCmd{h: node, index: index, clock: clock})
}

// Connect feeds outlet outPort of out into inlet inPort of in. Both ports
// must carry the same number of channels and the connection must not close
// a cycle. New connections have attenuation 1.
func (b *CommandBlock) Connect(out NodeHandle, outPort int, in NodeHandle, inPort int) ConnectionHandle {
	const op = "Connect"

	if b.done {
		return ConnectionHandle{}
	}

	b.checkNode(op, out)
	b.checkNode(op, in)

	tc := &topoConn{
		rt:      newConnection(),
		outPort: outPort,
		inPort:  inPort,
		dim:     1,
	}

	h := ConnectionHandle{b.g.conns.Allocate(tc)}
	tc.handle, tc.rt.handle = h, h
	b.conns = append(b.conns, tc)
	b.push(&connectCmd{tc: tc, out: out, in: in})

	return h
}

// Disconnect removes conn.
func (b *CommandBlock) Disconnect(conn ConnectionHandle) {
	if b.done || !b.checkConn("Disconnect", conn) {
		return
	}

	b.push(&disconnectCmd{h: conn})
}

// DisconnectPorts removes the oldest connection from outlet outPort of out
// to inlet inPort of in.
func (b *CommandBlock) DisconnectPorts(out NodeHandle, outPort int, in NodeHandle, inPort int) {
	const op = "DisconnectPorts"

	if b.done || !b.checkNode(op, out) || !b.checkNode(op, in) {
		return
	}

	b.push(&disconnectCmd{ports: &portPair{out: out, outPort: outPort, in: in, inPort: inPort}})
}

// SetAttenuation ramps the attenuation of conn to values over length
// samples. The number of values sets the attenuation dimension the first
// time and must match it afterwards; channel ch of the connection uses
// value ch modulo the dimension.
func (b *CommandBlock) SetAttenuation(conn ConnectionHandle, length uint32, values ...float64) {
	b.attenuation(&attenuationCmd{kind: attenuationSet, h: conn, length: length, values: values})
}

// AddAttenuationKey adds a keyframe to every dimension of the attenuation of
// conn.
func (b *CommandBlock) AddAttenuationKey(conn ConnectionHandle, clock uint64, values ...float64) {
	b.attenuation(&attenuationCmd{kind: attenuationKey, h: conn, clock: clock, values: values})
}

// SustainAttenuation drops the attenuation keyframes of conn after clock.
func (b *CommandBlock) SustainAttenuation(conn ConnectionHandle, clock uint64) {
	b.attenuation(&attenuationCmd{kind: attenuationSustain, h: conn, clock: clock})
}

func (b *CommandBlock) attenuation(c *attenuationCmd) {
	op := c.op()
	if b.done || !b.checkConn(op, c.h) {
		return
	}

	if c.kind != attenuationSustain {
		if n := len(c.values); n < 1 || n > MaxAttenuationDimension {
			b.fail(op, fmt.Errorf("%w: %d values", ErrAttenuationDimension, n))
			return
		}

		for _, v := range c.values {
			if !b.checkValue(op, v) {
				return
			}
		}

		c.values = append([]float64(nil), c.values...)
	}

	b.push(c)
}

// UpdateAudioKernel applies updater to the kernel of node when BeginMix
// applies the block. A failing update faults the node.
func (b *CommandBlock) UpdateAudioKernel(node NodeHandle, updater KernelUpdater) {
	const op = "UpdateAudioKernel"

	if b.done || !b.checkNode(op, node) {
		return
	}

	if updater == nil {
		b.fail(op, fmt.Errorf("%w: nil updater", ErrInvalidParameter))
		return
	}

	b.push(&updateKernelCmd{h: node, updater: updater})
}

// CreateUpdateRequest schedules updater to run on the job of node. callback,
// if not nil, is invoked on the dispatcher goroutine once the request has
// completed. The returned request must be disposed after its fence signals,
// even if the block is rejected.
func (b *CommandBlock) CreateUpdateRequest(node NodeHandle, updater KernelUpdater, callback func(*UpdateRequest)) *UpdateRequest {
	const op = "CreateUpdateRequest"

	if b.done {
		return nil
	}

	if updater == nil {
		b.fail(op, fmt.Errorf("%w: nil updater", ErrInvalidParameter))
	}

	b.checkNode(op, node)

	req := &UpdateRequest{
		g:        b.g,
		node:     node,
		updater:  updater,
		callback: callback,
		fence:    newFence(),
	}
	req.handle = UpdateRequestHandle{b.g.requests.Allocate(req)}
	b.requests = append(b.requests, req)
	b.push(&createRequestCmd{req: req})

	return req
}

// SetSampleProvider binds provider id to index of a provider slot of node.
// A zero id clears the binding.
func (b *CommandBlock) SetSampleProvider(node NodeHandle, slot, index int, id ProviderID) {
	b.provider(&providerCmd{kind: providerSet, h: node, slot: slot, index: index, id: id})
}

// InsertSampleProvider inserts id at index of a variable provider slot.
func (b *CommandBlock) InsertSampleProvider(node NodeHandle, slot, index int, id ProviderID) {
	b.provider(&providerCmd{kind: providerInsert, h: node, slot: slot, index: index, id: id})
}

// AddSampleProvider appends id to a variable provider slot.
func (b *CommandBlock) AddSampleProvider(node NodeHandle, slot int, id ProviderID) {
	b.provider(&providerCmd{kind: providerAdd, h: node, slot: slot, id: id})
}

// RemoveSampleProvider removes index from a variable provider slot.
func (b *CommandBlock) RemoveSampleProvider(node NodeHandle, slot, index int) {
	b.provider(&providerCmd{kind: providerRemove, h: node, slot: slot, index: index})
}

func (b *CommandBlock) provider(c *providerCmd) {
	if b.done || !b.checkNode(c.op(), c.h) {
		return
	}

	b.push(c)
}

// Complete validates the block and queues it for the next BeginMix. It must
// be called exactly once; afterwards the block is invalid. If any command
// failed, Complete returns an error wrapping ErrInvalidBlock and the
// command's error, and nothing is applied.
func (b *CommandBlock) Complete() error {
	if b.done {
		return ErrBlockCompleted
	}

	b.done = true
	g := b.g

	if b.err != nil {
		b.reject(b.err)
		return fmt.Errorf("%w: %w", ErrInvalidBlock, b.err)
	}

	g.ctrlMu.Lock()
	defer g.ctrlMu.Unlock()

	if g.disposed.Load() {
		b.abandon(ErrGraphDisposed)
		return ErrGraphDisposed
	}

	tx := &txn{g: g}

	for i, c := range b.cmds {
		if err := c.validate(tx); err != nil {
			tx.rollback()

			cmdErr := &CommandError{Index: i, Op: c.op(), Err: err}
			b.reject(cmdErr)

			return fmt.Errorf("%w: %w", ErrInvalidBlock, cmdErr)
		}
	}

	tx.commit()

	if len(b.cmds) > 0 {
		g.queue.push(b)
	}

	return nil
}

// Cancel discards the block without applying it.
func (b *CommandBlock) Cancel() {
	if b.done {
		return
	}

	b.done = true
	b.abandon(fmt.Errorf("%w: block cancelled", ErrInvalidBlock))
}

func (b *CommandBlock) reject(err *CommandError) {
	b.g.metrics.blocksRejected.Inc()
	b.g.logger.Debug().Int("commands", len(b.cmds)).Err(err).Msg("command block rejected")
	b.abandon(fmt.Errorf("%w: %w", ErrInvalidBlock, err))
}

// abandon frees every handle the block reserved and fails its update
// requests with err.
func (b *CommandBlock) abandon(err error) {
	for _, n := range b.nodes {
		b.g.nodes.Free(n.handle.Handle)
	}

	for _, c := range b.conns {
		b.g.conns.Free(c.handle.Handle)
	}

	b.failRequests(err)
	b.cmds = nil
}

func (b *CommandBlock) failRequests(err error) {
	for _, req := range b.requests {
		b.g.completeRequest(req, err)
	}
}
