package dspgraph

import "fmt"

type entityState uint8

const (
	statePending entityState = iota
	stateLive
	stateReleased
)

type keyCursor struct {
	clock uint64
	set   bool
}

// check reports whether a keyframe at clock keeps the keys ordered.
func (k keyCursor) check(clock uint64) error {
	if k.set && clock < k.clock {
		return fmt.Errorf("%w: clock %d before %d", ErrOutOfOrderKeyframe, clock, k.clock)
	}

	return nil
}

// topoNode is the control-side model of a node, used to validate command
// blocks. It is guarded by Graph.ctrlMu and never read by jobs.
type topoNode struct {
	handle NodeHandle
	rt     *node
	state  entityState
	root   bool

	inlets  []Port
	outlets []Port
	keys    []keyCursor

	slots    []ProviderSlotDescription
	slotLens []int

	conns         []*topoConn
	everConnected bool
}

// topoConn is the control-side model of a connection.
type topoConn struct {
	handle  ConnectionHandle
	rt      *connection
	state   entityState
	out     *topoNode
	outPort int
	in      *topoNode
	inPort  int

	dim      int
	dimFixed bool
	keys     keyCursor
}

// txn validates one block against the control-side model. Every mutation
// records an undo step so a failing block leaves the model untouched.
type txn struct {
	g             *Graph
	undo          []func()
	releasedNodes []*topoNode
	releasedConns []*topoConn
}

func (tx *txn) record(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}

	tx.undo = nil
	tx.releasedNodes = nil
	tx.releasedConns = nil
}

// commit frees the handles of everything the block released.
func (tx *txn) commit() {
	for _, c := range tx.releasedConns {
		tx.g.conns.Free(c.handle.Handle)
	}

	for _, n := range tx.releasedNodes {
		tx.g.nodes.Free(n.handle.Handle)
	}
}

func (tx *txn) node(h NodeHandle) (*topoNode, error) {
	n, ok := tx.g.nodes.Get(h.Handle)
	if !ok || n.state != stateLive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}

	return n, nil
}

func (tx *txn) conn(h ConnectionHandle) (*topoConn, error) {
	c, ok := tx.g.conns.Get(h.Handle)
	if !ok || c.state != stateLive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}

	return c, nil
}

func (tx *txn) param(h NodeHandle, index int) (*topoNode, error) {
	n, err := tx.node(h)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(n.keys) {
		return nil, fmt.Errorf("%w: %s has no parameter %d", ErrInvalidParameter, h, index)
	}

	return n, nil
}

func (tx *txn) setState(state *entityState, s entityState) {
	old := *state
	*state = s
	tx.record(func() { *state = old })
}

func (tx *txn) setCursor(k *keyCursor, v keyCursor) {
	old := *k
	*k = v
	tx.record(func() { *k = old })
}

func (tx *txn) setConnected(n *topoNode) {
	if n.everConnected {
		return
	}

	n.everConnected = true
	tx.record(func() { n.everConnected = false })
}

func (tx *txn) addPort(n *topoNode, p Port, inlet bool) {
	ports := &n.outlets
	if inlet {
		ports = &n.inlets
	}

	old := *ports
	*ports = append(old[:len(old):len(old)], p)
	tx.record(func() { *ports = old })
}

func (tx *txn) link(c *topoConn) {
	tx.setState(&c.state, stateLive)
	tx.setConnected(c.out)
	tx.setConnected(c.in)
	tx.setConns(c.out, appendConn(c.out.conns, c))

	if c.in != c.out {
		tx.setConns(c.in, appendConn(c.in.conns, c))
	}
}

func (tx *txn) releaseConn(c *topoConn) {
	tx.setState(&c.state, stateReleased)
	tx.setConns(c.out, withoutConn(c.out.conns, c))
	tx.setConns(c.in, withoutConn(c.in.conns, c))
	tx.releasedConns = append(tx.releasedConns, c)
}

func (tx *txn) releaseNode(n *topoNode) {
	for _, c := range n.conns {
		tx.releaseConn(c)
	}

	tx.setState(&n.state, stateReleased)
	tx.releasedNodes = append(tx.releasedNodes, n)
}

func (tx *txn) setConns(n *topoNode, conns []*topoConn) {
	old := n.conns
	n.conns = conns
	tx.record(func() { n.conns = old })
}

func (tx *txn) setSlotLen(n *topoNode, slot, length int) {
	old := n.slotLens[slot]
	n.slotLens[slot] = length
	tx.record(func() { n.slotLens[slot] = old })
}

// reachable reports whether to can be reached from from by following
// connections downstream.
func reachable(from, to *topoNode) bool {
	if from == to {
		return true
	}

	seen := map[*topoNode]bool{from: true}
	stack := []*topoNode{from}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, c := range n.conns {
			if c.out != n || seen[c.in] {
				continue
			}

			if c.in == to {
				return true
			}

			seen[c.in] = true
			stack = append(stack, c.in)
		}
	}

	return false
}

// appendConn and withoutConn never modify list in place, so an undo step can
// restore the previous slice.
func appendConn(list []*topoConn, c *topoConn) []*topoConn {
	return append(list[:len(list):len(list)], c)
}

func withoutConn(list []*topoConn, c *topoConn) []*topoConn {
	out := make([]*topoConn, 0, len(list))

	for _, x := range list {
		if x != c {
			out = append(out, x)
		}
	}

	return out
}
