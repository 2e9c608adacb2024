package patch

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/rs/zerolog"
)

// ErrStructureChanged is returned by Reload when the new patch adds,
// removes or rewires nodes. Only parameters and attenuation reload live.
var ErrStructureChanged = errors.New("patch: structure changed")

// Instance is a patch built into a graph.
type Instance struct {
	g      *dspgraph.Graph
	reg    *kernels.Registry
	logger zerolog.Logger

	patch     *Patch
	nodes     map[string]dspgraph.NodeHandle
	specs     map[string]kernels.Spec
	conns     []dspgraph.ConnectionHandle
	providers []dspgraph.ProviderID
}

// Build creates every node, connection and automation key of p in g with a
// single command block, so either the whole patch appears at the next mix
// or nothing does.
func Build(g *dspgraph.Graph, p *Patch, reg *kernels.Registry, logger zerolog.Logger) (*Instance, error) {
	if err := p.Validate(reg); err != nil {
		return nil, err
	}

	in := &Instance{
		g:      g,
		reg:    reg,
		logger: logger.With().Str("component", "patch").Logger(),
		patch:  p,
		nodes:  make(map[string]dspgraph.NodeHandle, len(p.Nodes)),
		specs:  make(map[string]kernels.Spec, len(p.Nodes)),
	}

	b := g.CreateCommandBlock()

	if err := in.queue(b); err != nil {
		b.Cancel()
		in.unregister()

		return nil, err
	}

	if err := b.Complete(); err != nil {
		in.unregister()
		return nil, fmt.Errorf("patch: build: %w", err)
	}

	in.logger.Info().Int("nodes", len(in.nodes)).Int("connections", len(in.conns)).Msg("Patch built")

	return in, nil
}

func (in *Instance) queue(b *dspgraph.CommandBlock) error {
	p := in.patch
	channels := in.g.Channels()

	for _, n := range p.Nodes {
		spec, err := in.reg.Build(n.Kernel, n.Config(channels))
		if err != nil {
			return fmt.Errorf("%w: node %q: %w", ErrInvalidPatch, n.ID, err)
		}

		node := spec.Create(b, channels, in.g.Format())
		in.nodes[n.ID] = node
		in.specs[n.ID] = spec

		for _, name := range slices.Sorted(maps.Keys(n.Params)) {
			idx := spec.ParamIndex(name)
			if idx < 0 {
				return fmt.Errorf("%w: node %q: unknown parameter %q", ErrInvalidPatch, n.ID, name)
			}

			b.SetFloat(node, idx, n.Params[name], 0)
		}

		if n.Source != "" {
			if err := in.bindSource(b, n, spec, node); err != nil {
				return err
			}
		}
	}

	for _, c := range p.Connections {
		conn := b.Connect(in.nodes[c.From], c.FromPort, in.node(c.To), c.ToPort)
		if len(c.Attenuation) > 0 {
			b.SetAttenuation(conn, 0, c.Attenuation...)
		}

		in.conns = append(in.conns, conn)
	}

	rate := in.g.SampleRate()

	for _, a := range p.Automation {
		idx := in.specs[a.Node].ParamIndex(a.Param)
		if idx < 0 {
			return fmt.Errorf("%w: automation of node %q: unknown parameter %q", ErrInvalidPatch, a.Node, a.Param)
		}

		for _, key := range a.Keys {
			clock := uint64(math.Round(max(key[0], 0) * rate))
			b.AddFloatKey(in.nodes[a.Node], idx, clock, key[1])
		}
	}

	return nil
}

func (in *Instance) node(id string) dspgraph.NodeHandle {
	if id == RootID {
		return in.g.RootNode()
	}

	return in.nodes[id]
}

// Node returns the handle of the node with the given patch id.
func (in *Instance) Node(id string) (dspgraph.NodeHandle, bool) {
	if id == RootID {
		return in.g.RootNode(), true
	}

	h, ok := in.nodes[id]

	return h, ok
}

// Graph returns the graph the patch was built into.
func (in *Instance) Graph() *dspgraph.Graph {
	return in.g
}

// Patch returns the patch currently applied.
func (in *Instance) Patch() *Patch {
	return in.patch
}

// Close unregisters the sample providers created for sources. The graph
// keeps the nodes.
func (in *Instance) Close() {
	in.unregister()
}

func (in *Instance) unregister() {
	for _, id := range in.providers {
		in.g.Providers().Unregister(id)
	}

	in.providers = nil
}

// Reload applies the parameter and attenuation differences between the
// current patch and next as ramps of length frames, in one command block.
// Removed parameters ramp back to their default and removed attenuation to
// unity. It returns the number of changed values. Any structural difference,
// automation included, fails with ErrStructureChanged and changes nothing.
func (in *Instance) Reload(next *Patch, length uint32) (int, error) {
	if err := next.Validate(in.reg); err != nil {
		return 0, err
	}

	if err := sameStructure(in.patch, next); err != nil {
		return 0, err
	}

	b := in.g.CreateCommandBlock()
	changed := 0

	for i, n := range next.Nodes {
		prev := in.patch.Nodes[i]
		spec := in.specs[n.ID]

		for _, name := range slices.Sorted(maps.Keys(n.Params)) {
			v := n.Params[name]
			if old, ok := prev.Params[name]; ok && old == v {
				continue
			}

			idx := spec.ParamIndex(name)
			if idx < 0 {
				b.Cancel()
				return 0, fmt.Errorf("%w: node %q: unknown parameter %q", ErrInvalidPatch, n.ID, name)
			}

			b.SetFloat(in.nodes[n.ID], idx, v, length)
			changed++
		}

		for _, name := range slices.Sorted(maps.Keys(prev.Params)) {
			if _, ok := n.Params[name]; ok {
				continue
			}

			idx := spec.ParamIndex(name)
			b.SetFloat(in.nodes[n.ID], idx, spec.Params[idx].Default, length)
			changed++
		}
	}

	for i, c := range next.Connections {
		prev := in.patch.Connections[i].Attenuation
		values := c.Attenuation

		if len(values) == 0 && len(prev) > 0 {
			values = make([]float64, len(prev))
			for j := range values {
				values[j] = 1
			}
		}

		if len(values) == 0 || slices.Equal(values, prev) {
			continue
		}

		b.SetAttenuation(in.conns[i], length, values...)
		changed++
	}

	if changed == 0 {
		b.Cancel()
		in.patch = next

		return 0, nil
	}

	if err := b.Complete(); err != nil {
		return 0, fmt.Errorf("patch: reload: %w", err)
	}

	in.patch = next
	in.logger.Info().Int("changed", changed).Uint32("ramp_frames", length).Msg("Patch reloaded")

	return changed, nil
}

func sameStructure(a, b *Patch) error {
	if len(a.Nodes) != len(b.Nodes) || len(a.Connections) != len(b.Connections) {
		return fmt.Errorf("%w: node or connection count differs", ErrStructureChanged)
	}

	for i := range a.Nodes {
		x, y := a.Nodes[i], b.Nodes[i]
		if x.ID != y.ID || x.Kernel != y.Kernel || x.Source != y.Source || x.Loop != y.Loop || !maps.Equal(x.Settings, y.Settings) {
			return fmt.Errorf("%w: node %q", ErrStructureChanged, y.ID)
		}
	}

	for i := range a.Connections {
		x, y := a.Connections[i], b.Connections[i]
		if x.From != y.From || x.FromPort != y.FromPort || x.To != y.To || x.ToPort != y.ToPort {
			return fmt.Errorf("%w: connection %d", ErrStructureChanged, i)
		}
	}

	if !slices.EqualFunc(a.Automation, b.Automation, sameAutomation) {
		return fmt.Errorf("%w: automation differs", ErrStructureChanged)
	}

	return nil
}

// Keys are absolute clocks from the start of the graph, so edited
// automation cannot be applied to a running instance.
func sameAutomation(x, y AutomationSection) bool {
	return x.Node == y.Node && x.Param == y.Param && slices.Equal(x.Keys, y.Keys)
}
