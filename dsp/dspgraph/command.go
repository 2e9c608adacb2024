package dspgraph

import "fmt"

// command is one recorded mutation of a CommandBlock. validate runs on the
// control side inside Complete and resolves everything apply needs; apply
// runs on the mixing side inside BeginMix.
type command interface {
	op() string
	validate(tx *txn) error
	apply(g *Graph)
}

type createNodeCmd struct {
	tn *topoNode
}

func (c *createNodeCmd) op() string { return "CreateNode" }

func (c *createNodeCmd) validate(tx *txn) error {
	if c.tn.state != statePending {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, c.tn.handle)
	}

	tx.setState(&c.tn.state, stateLive)

	return nil
}

func (c *createNodeCmd) apply(g *Graph) {
	g.addNode(c.tn.rt)
}

type releaseNodeCmd struct {
	h NodeHandle
	n *node
}

func (c *releaseNodeCmd) op() string { return "ReleaseNode" }

func (c *releaseNodeCmd) validate(tx *txn) error {
	tn, err := tx.node(c.h)
	if err != nil {
		return err
	}

	if tn.root {
		return fmt.Errorf("%w: the root node cannot be released", ErrInvalidTopology)
	}

	tx.releaseNode(tn)
	c.n = tn.rt

	return nil
}

func (c *releaseNodeCmd) apply(g *Graph) {
	g.removeNode(c.n)
}

type addPortCmd struct {
	h     NodeHandle
	port  Port
	inlet bool
	n     *node
}

func (c *addPortCmd) op() string {
	if c.inlet {
		return "AddInletPort"
	}

	return "AddOutletPort"
}

func (c *addPortCmd) validate(tx *txn) error {
	tn, err := tx.node(c.h)
	if err != nil {
		return err
	}

	if tn.root {
		return fmt.Errorf("%w: the root node ports are fixed", ErrInvalidTopology)
	}

	if tn.everConnected {
		return fmt.Errorf("%w: %s already has connections", ErrInvalidTopology, c.h)
	}

	tx.addPort(tn, c.port, c.inlet)
	c.n = tn.rt

	return nil
}

func (c *addPortCmd) apply(g *Graph) {
	if err := c.n.addPort(g, c.port, c.inlet); err != nil {
		g.fault(c.n, err)
	}
}

type setFloatCmd struct {
	h      NodeHandle
	index  int
	value  float64
	length uint32
	n      *node
}

func (c *setFloatCmd) op() string { return "SetFloat" }

func (c *setFloatCmd) validate(tx *txn) error {
	tn, err := tx.param(c.h, c.index)
	if err != nil {
		return err
	}

	tx.setCursor(&tn.keys[c.index], keyCursor{})
	c.n = tn.rt

	return nil
}

func (c *setFloatCmd) apply(g *Graph) {
	c.n.params[c.index].setFloat(g.clock.Load(), c.value, c.length)
}

type addFloatKeyCmd struct {
	h     NodeHandle
	index int
	key   Keyframe
	n     *node
}

func (c *addFloatKeyCmd) op() string { return "AddFloatKey" }

func (c *addFloatKeyCmd) validate(tx *txn) error {
	tn, err := tx.param(c.h, c.index)
	if err != nil {
		return err
	}

	if err := tn.keys[c.index].check(c.key.Clock); err != nil {
		return err
	}

	tx.setCursor(&tn.keys[c.index], keyCursor{clock: c.key.Clock, set: true})
	c.n = tn.rt

	return nil
}

func (c *addFloatKeyCmd) apply(*Graph) {
	c.n.params[c.index].addKey(c.key.Clock, c.key.Value)
}

type sustainFloatCmd struct {
	h     NodeHandle
	index int
	clock uint64
	n     *node
}

func (c *sustainFloatCmd) op() string { return "SustainFloat" }

func (c *sustainFloatCmd) validate(tx *txn) error {
	tn, err := tx.param(c.h, c.index)
	if err != nil {
		return err
	}

	tx.setCursor(&tn.keys[c.index], keyCursor{clock: c.clock, set: true})
	c.n = tn.rt

	return nil
}

func (c *sustainFloatCmd) apply(*Graph) {
	c.n.params[c.index].sustain(c.clock)
}

type connectCmd struct {
	tc      *topoConn
	out, in NodeHandle
}

func (c *connectCmd) op() string { return "Connect" }

func (c *connectCmd) validate(tx *txn) error {
	out, err := tx.node(c.out)
	if err != nil {
		return err
	}

	in, err := tx.node(c.in)
	if err != nil {
		return err
	}

	tc := c.tc
	if out == in {
		return fmt.Errorf("%w: %s connects to itself", ErrCyclicGraph, c.out)
	}

	if tc.outPort < 0 || tc.outPort >= len(out.outlets) {
		return fmt.Errorf("%w: %s has no outlet %d", ErrInvalidTopology, c.out, tc.outPort)
	}

	if tc.inPort < 0 || tc.inPort >= len(in.inlets) {
		return fmt.Errorf("%w: %s has no inlet %d", ErrInvalidTopology, c.in, tc.inPort)
	}

	if a, b := out.outlets[tc.outPort].Channels, in.inlets[tc.inPort].Channels; a != b {
		return fmt.Errorf("%w: outlet has %d channels, inlet has %d", ErrInvalidTopology, a, b)
	}

	if reachable(in, out) {
		return fmt.Errorf("%w: %s already feeds %s", ErrCyclicGraph, c.in, c.out)
	}

	tc.out, tc.in = out, in
	tx.link(tc)

	tc.rt.out, tc.rt.in = out.rt, in.rt
	tc.rt.outPort, tc.rt.inPort = tc.outPort, tc.inPort

	return nil
}

func (c *connectCmd) apply(g *Graph) {
	g.addConnection(c.tc.rt)
}

type disconnectCmd struct {
	h     ConnectionHandle
	ports *portPair
	rt    *connection
}

// portPair addresses a connection by its endpoints.
type portPair struct {
	out, in         NodeHandle
	outPort, inPort int
}

func (c *disconnectCmd) op() string {
	if c.ports != nil {
		return "DisconnectPorts"
	}

	return "Disconnect"
}

func (c *disconnectCmd) validate(tx *txn) error {
	var tc *topoConn

	if c.ports == nil {
		var err error
		if tc, err = tx.conn(c.h); err != nil {
			return err
		}
	} else {
		out, err := tx.node(c.ports.out)
		if err != nil {
			return err
		}

		in, err := tx.node(c.ports.in)
		if err != nil {
			return err
		}

		for _, x := range out.conns {
			if x.out == out && x.in == in && x.outPort == c.ports.outPort && x.inPort == c.ports.inPort {
				tc = x
				break
			}
		}

		if tc == nil {
			return fmt.Errorf("%w: %s:%d is not connected to %s:%d", ErrInvalidTopology,
				c.ports.out, c.ports.outPort, c.ports.in, c.ports.inPort)
		}
	}

	tx.releaseConn(tc)
	c.rt = tc.rt

	return nil
}

func (c *disconnectCmd) apply(g *Graph) {
	g.removeConnection(c.rt)
}

type attenuationCmd struct {
	kind   attenuationOp
	h      ConnectionHandle
	length uint32
	clock  uint64
	values []float64
	rt     *connection
}

type attenuationOp uint8

const (
	attenuationSet attenuationOp = iota
	attenuationKey
	attenuationSustain
)

func (c *attenuationCmd) op() string {
	switch c.kind {
	case attenuationKey:
		return "AddAttenuationKey"
	case attenuationSustain:
		return "SustainAttenuation"
	default:
		return "SetAttenuation"
	}
}

func (c *attenuationCmd) validate(tx *txn) error {
	tc, err := tx.conn(c.h)
	if err != nil {
		return err
	}

	c.rt = tc.rt

	if c.kind == attenuationSustain {
		tx.setCursor(&tc.keys, keyCursor{clock: c.clock, set: true})
		return nil
	}

	if tc.dimFixed && len(c.values) != tc.dim {
		return fmt.Errorf("%w: %s has dimension %d, got %d values", ErrAttenuationDimension, c.h, tc.dim, len(c.values))
	}

	if !tc.dimFixed {
		oldDim := tc.dim
		tc.dim, tc.dimFixed = len(c.values), true
		tx.record(func() { tc.dim, tc.dimFixed = oldDim, false })
	}

	if c.kind == attenuationSet {
		tx.setCursor(&tc.keys, keyCursor{})
		return nil
	}

	if err := tc.keys.check(c.clock); err != nil {
		return err
	}

	tx.setCursor(&tc.keys, keyCursor{clock: c.clock, set: true})

	return nil
}

func (c *attenuationCmd) apply(g *Graph) {
	switch c.kind {
	case attenuationSustain:
		for i := range c.rt.atten {
			c.rt.atten[i].sustain(c.clock)
		}
	case attenuationKey:
		c.rt.resize(len(c.values))
		for i, v := range c.values {
			c.rt.atten[i].addKey(c.clock, v)
		}
	default:
		c.rt.resize(len(c.values))
		now := g.clock.Load()
		for i, v := range c.values {
			c.rt.atten[i].setFloat(now, v, c.length)
		}
	}
}

type updateKernelCmd struct {
	h       NodeHandle
	updater KernelUpdater
	n       *node
}

func (c *updateKernelCmd) op() string { return "UpdateAudioKernel" }

func (c *updateKernelCmd) validate(tx *txn) error {
	tn, err := tx.node(c.h)
	if err != nil {
		return err
	}

	c.n = tn.rt

	return nil
}

func (c *updateKernelCmd) apply(g *Graph) {
	if err := g.update(c.n, c.updater); err != nil {
		g.fault(c.n, err)
	}
}

type createRequestCmd struct {
	req *UpdateRequest
}

func (c *createRequestCmd) op() string { return "CreateUpdateRequest" }

func (c *createRequestCmd) validate(tx *txn) error {
	tn, err := tx.node(c.req.node)
	if err != nil {
		return err
	}

	c.req.target = tn.rt

	return nil
}

func (c *createRequestCmd) apply(*Graph) {
	n := c.req.target
	n.updates = append(n.updates, c.req)
}

type providerOp uint8

const (
	providerSet providerOp = iota
	providerInsert
	providerAdd
	providerRemove
)

type providerCmd struct {
	kind  providerOp
	h     NodeHandle
	slot  int
	index int
	id    ProviderID
	n     *node
}

func (c *providerCmd) op() string {
	switch c.kind {
	case providerInsert:
		return "InsertSampleProvider"
	case providerAdd:
		return "AddSampleProvider"
	case providerRemove:
		return "RemoveSampleProvider"
	default:
		return "SetSampleProvider"
	}
}

func (c *providerCmd) validate(tx *txn) error {
	tn, err := tx.node(c.h)
	if err != nil {
		return err
	}

	if c.slot < 0 || c.slot >= len(tn.slots) {
		return fmt.Errorf("%w: %s has no provider slot %d", ErrInvalidParameter, c.h, c.slot)
	}

	if c.id != 0 {
		if _, ok := tx.g.providers.Get(c.id); !ok {
			return fmt.Errorf("%w: sample provider %d", ErrInvalidHandle, c.id)
		}
	}

	length := tn.slotLens[c.slot]
	variable := tn.slots[c.slot].Size < 0

	if c.kind != providerSet && !variable {
		return fmt.Errorf("%w: provider slot %q has a fixed size", ErrInvalidParameter, tn.slots[c.slot].Name)
	}

	switch c.kind {
	case providerSet, providerRemove:
		if c.index < 0 || c.index >= length {
			return fmt.Errorf("%w: provider index %d of %d", ErrInvalidParameter, c.index, length)
		}
	case providerInsert:
		if c.index < 0 || c.index > length {
			return fmt.Errorf("%w: provider index %d of %d", ErrInvalidParameter, c.index, length)
		}
	}

	switch c.kind {
	case providerInsert, providerAdd:
		tx.setSlotLen(tn, c.slot, length+1)
	case providerRemove:
		tx.setSlotLen(tn, c.slot, length-1)
	}

	c.n = tn.rt

	return nil
}

func (c *providerCmd) apply(*Graph) {
	ids := c.n.providers[c.slot]

	switch c.kind {
	case providerSet:
		ids[c.index] = c.id
	case providerAdd:
		ids = append(ids, c.id)
	case providerInsert:
		ids = append(ids, 0)
		copy(ids[c.index+1:], ids[c.index:])
		ids[c.index] = c.id
	case providerRemove:
		ids = append(ids[:c.index], ids[c.index+1:]...)
	}

	c.n.providers[c.slot] = ids
}
