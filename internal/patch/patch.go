// Package patch loads TOML patch files describing a dspgraph: the graph
// format, the nodes and their kernels, connections, attenuation and
// automation keys.
//
// A patch looks like:
//
//	[graph]
//	format = "stereo"
//	sample_rate = 48000
//
//	[[node]]
//	id = "osc"
//	kernel = "oscillator"
//	settings = { waveform = "saw" }
//	params = { frequency = 220.0, amplitude = 0.3 }
//
//	[[connection]]
//	from = "osc"
//	to = "root"
//	attenuation = [0.8]
package patch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/pelletier/go-toml/v2"
)

// RootID names the graph root in connections. An empty "to" means the root
// as well.
const RootID = "root"

// ErrInvalidPatch is returned for patches that parse but cannot be built.
var ErrInvalidPatch = errors.New("patch: invalid patch")

// Patch is a parsed patch file.
type Patch struct {
	Graph       GraphSection        `toml:"graph"`
	Nodes       []NodeSection       `toml:"node"`
	Connections []ConnectionSection `toml:"connection"`
	Automation  []AutomationSection `toml:"automation"`

	// Dir resolves relative source paths. Load sets it to the directory of
	// the patch file.
	Dir string `toml:"-"`
}

// GraphSection configures CreateGraph.
type GraphSection struct {
	Format     string  `toml:"format"`
	Channels   int     `toml:"channels"`
	BufferSize int     `toml:"buffer_size"`
	SampleRate float64 `toml:"sample_rate"`
	Workers    *int    `toml:"workers"`
}

// NodeSection declares one node.
type NodeSection struct {
	ID     string `toml:"id"`
	Kernel string `toml:"kernel"`
	// Settings are passed to the kernel factory. Numbers and booleans go to
	// Config.Num, strings to Config.Str.
	Settings map[string]any     `toml:"settings"`
	Params   map[string]float64 `toml:"params"`
	// Source is a WAV file bound to the kernel's "source" provider slot.
	Source string `toml:"source"`
	Loop   bool   `toml:"loop"`
}

// ConnectionSection connects an outlet of one node to an inlet of another.
type ConnectionSection struct {
	From        string    `toml:"from"`
	FromPort    int       `toml:"from_port"`
	To          string    `toml:"to"`
	ToPort      int       `toml:"to_port"`
	Attenuation []float64 `toml:"attenuation"`
}

// AutomationSection schedules parameter keyframes. Each key is a pair of
// time in seconds and value.
type AutomationSection struct {
	Node  string       `toml:"node"`
	Param string       `toml:"param"`
	Keys  [][2]float64 `toml:"keys"`
}

// Parse decodes a patch and applies defaults. Unknown fields are errors.
func Parse(data []byte) (*Patch, error) {
	var p Patch

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&p); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("patch: line %d column %d: %w", row, col, err)
		}

		return nil, fmt.Errorf("patch: %w", err)
	}

	p.defaults()

	return &p, nil
}

// Load reads and parses the patch at path.
func Load(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p.Dir = filepath.Dir(path)

	return p, nil
}

func (p *Patch) defaults() {
	if p.Graph.Format == "" {
		p.Graph.Format = "stereo"
	}

	if p.Graph.BufferSize == 0 {
		p.Graph.BufferSize = 512
	}

	if p.Graph.SampleRate == 0 {
		p.Graph.SampleRate = 48000
	}

	for i := range p.Connections {
		if p.Connections[i].To == "" {
			p.Connections[i].To = RootID
		}
	}
}

// Format returns the parsed graph format and channel count.
func (p *Patch) Format() (dspgraph.SoundFormat, int, error) {
	format, err := dspgraph.ParseSoundFormat(p.Graph.Format)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	channels := p.Graph.Channels
	if channels == 0 {
		channels = format.Channels()
	}

	if channels == 0 {
		return 0, 0, fmt.Errorf("%w: format %s needs an explicit channel count", ErrInvalidPatch, format)
	}

	return format, channels, nil
}

// NewGraph creates a graph as configured by the graph section. opts are
// applied after the patch's own settings.
func (p *Patch) NewGraph(opts ...dspgraph.Option) (*dspgraph.Graph, error) {
	format, channels, err := p.Format()
	if err != nil {
		return nil, err
	}

	if p.Graph.Workers != nil {
		opts = append([]dspgraph.Option{dspgraph.WithWorkers(*p.Graph.Workers)}, opts...)
	}

	return dspgraph.CreateGraph(format, channels, p.Graph.BufferSize, p.Graph.SampleRate, opts...)
}

// Config converts the node's settings for its kernel factory.
func (n NodeSection) Config(channels int) kernels.Config {
	cfg := kernels.Config{
		Channels: channels,
		Num:      make(map[string]float64),
		Str:      make(map[string]string),
	}

	for k, v := range n.Settings {
		switch v := v.(type) {
		case int64:
			cfg.Num[k] = float64(v)
		case float64:
			cfg.Num[k] = v
		case bool:
			if v {
				cfg.Num[k] = 1
			} else {
				cfg.Num[k] = 0
			}
		case string:
			cfg.Str[k] = v
		}
	}

	return cfg
}

// Validate checks references and kernel names without building anything.
func (p *Patch) Validate(reg *kernels.Registry) error {
	if _, _, err := p.Format(); err != nil {
		return err
	}

	ids := make(map[string]bool, len(p.Nodes))

	for i, n := range p.Nodes {
		switch {
		case n.ID == "":
			return fmt.Errorf("%w: node %d has no id", ErrInvalidPatch, i)
		case n.ID == RootID:
			return fmt.Errorf("%w: node id %q is reserved", ErrInvalidPatch, RootID)
		case ids[n.ID]:
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidPatch, n.ID)
		case reg.Lookup(n.Kernel) == nil:
			return fmt.Errorf("%w: node %q: %w: %q", ErrInvalidPatch, n.ID, kernels.ErrUnknownKernel, n.Kernel)
		}

		for k, v := range n.Settings {
			switch v.(type) {
			case int64, float64, bool, string:
			default:
				return fmt.Errorf("%w: node %q: setting %q has unsupported type %T", ErrInvalidPatch, n.ID, k, v)
			}
		}

		ids[n.ID] = true
	}

	for i, c := range p.Connections {
		if !ids[c.From] {
			return fmt.Errorf("%w: connection %d: unknown source node %q", ErrInvalidPatch, i, c.From)
		}

		if c.To != RootID && !ids[c.To] {
			return fmt.Errorf("%w: connection %d: unknown target node %q", ErrInvalidPatch, i, c.To)
		}

		if len(c.Attenuation) > dspgraph.MaxAttenuationDimension {
			return fmt.Errorf("%w: connection %d: more than %d attenuation values", ErrInvalidPatch, i, dspgraph.MaxAttenuationDimension)
		}
	}

	for i, a := range p.Automation {
		if !ids[a.Node] {
			return fmt.Errorf("%w: automation %d: unknown node %q", ErrInvalidPatch, i, a.Node)
		}

		for j := 1; j < len(a.Keys); j++ {
			if a.Keys[j][0] < a.Keys[j-1][0] {
				return fmt.Errorf("%w: automation %d: keys not in time order", ErrInvalidPatch, i)
			}
		}
	}

	return nil
}
