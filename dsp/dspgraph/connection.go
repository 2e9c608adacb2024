package dspgraph

import (
	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/cwbudde/algo-vecmath"
)

// MaxAttenuationDimension is the largest attenuation vector of a connection.
const MaxAttenuationDimension = 8

// connection is the mixing-side state of a connection.
type connection struct {
	handle  ConnectionHandle
	seq     uint64
	out     *node
	outPort int
	in      *node
	inPort  int

	// atten holds one trajectory per dimension. Channel ch of the port is
	// scaled by atten[ch%len(atten)].
	atten   []ParameterState
	scratch *buffer.Block
}

func newConnection() *connection {
	return &connection{atten: []ParameterState{newAttenuationState(1)}}
}

func (c *connection) link(g *Graph) error {
	block, err := g.memory.AllocateFloats(g.bufferSize)
	if err != nil {
		return err
	}

	c.scratch = block
	c.in.inletConns[c.inPort] = append(c.in.inletConns[c.inPort], c)
	c.out.outConns = append(c.out.outConns, c)

	return nil
}

func (c *connection) unlink(g *Graph) {
	if c.in.inletConns != nil {
		c.in.inletConns[c.inPort] = removeConn(c.in.inletConns[c.inPort], c)
	}

	c.out.outConns = removeConn(c.out.outConns, c)

	if c.scratch != nil {
		_ = g.memory.Free(c.scratch)
		c.scratch = nil
	}
}

// resize widens the attenuation vector to dim, repeating the current
// channels.
func (c *connection) resize(dim int) {
	if dim == len(c.atten) {
		return
	}

	next := make([]ParameterState, dim)
	for i := range next {
		src := c.atten[i%len(c.atten)]
		src.keys = append([]Keyframe(nil), src.keys...)
		next[i] = src
	}

	c.atten = next
}

// mix accumulates the attenuated upstream outlet into the downstream inlet
// for the first frames samples starting at clock.
func (c *connection) mix(clock uint64, frames int) {
	src := c.out.outBufs[c.outPort]
	dst := c.in.inBufs[c.inPort]
	scratch := c.scratch.Floats()[:frames]

	for ch := range dst.Channels() {
		in := src.Channel(ch)[:frames]
		out := dst.Channel(ch)[:frames]
		a := &c.atten[ch%len(c.atten)]

		if v, ok := a.constantOver(clock, frames); ok {
			switch v {
			case 0:
			case 1:
				vecmath.AddBlockInPlace(out, in)
			default:
				vecmath.ScaleBlock(scratch, in, v)
				vecmath.AddBlockInPlace(out, scratch)
			}

			continue
		}

		a.fill(scratch, clock)
		vecmath.MulAddBlock(out, in, scratch, out)
	}
}

func removeConn(list []*connection, c *connection) []*connection {
	for i, x := range list {
		if x == c {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}
