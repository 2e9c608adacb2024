package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/cwbudde/algo-dspgraph/dsp/output"
)

// bindSource decodes the node's WAV source into memory, registers it with
// the graph and binds it to the kernel's "source" slot.
func (in *Instance) bindSource(b *dspgraph.CommandBlock, n NodeSection, spec kernels.Spec, node dspgraph.NodeHandle) error {
	slot := spec.SlotIndex("source")
	if slot < 0 {
		return fmt.Errorf("%w: node %q: kernel %s takes no source", ErrInvalidPatch, n.ID, n.Kernel)
	}

	path := n.Source
	if !filepath.IsAbs(path) && in.patch.Dir != "" {
		path = filepath.Join(in.patch.Dir, path)
	}

	p, err := LoadWAV(path, n.Loop)
	if err != nil {
		return fmt.Errorf("node %q: %w", n.ID, err)
	}

	if p.SampleRate() != in.g.SampleRate() {
		in.logger.Warn().Str("node", n.ID).Float64("source_rate", p.SampleRate()).
			Float64("graph_rate", in.g.SampleRate()).Msg("Source sample rate differs from graph, playing unconverted")
	}

	id := in.g.Providers().Register(p)
	in.providers = append(in.providers, id)
	b.SetSampleProvider(node, slot, 0, id)

	return nil
}

// LoadWAV decodes a WAV file into an in-memory provider.
func LoadWAV(path string, loop bool) (*dspgraph.SliceProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	defer f.Close()

	p, err := output.ReadWAV(f, loop)
	if err != nil {
		return nil, fmt.Errorf("patch: %s: %w", path, err)
	}

	return p, nil
}
