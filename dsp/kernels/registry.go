package kernels

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
)

// Factory builds the kernel and node layout for one node.
type Factory func(cfg Config) (Spec, error)

// Spec describes a node to create: its kernel, parameters, provider slots
// and number of inlet and outlet ports.
type Spec struct {
	Kernel  dspgraph.AudioKernel
	Params  []dspgraph.ParameterDescription
	Slots   []dspgraph.ProviderSlotDescription
	Inlets  int
	Outlets int
}

// ParamIndex returns the index of the parameter called name, or -1.
func (s Spec) ParamIndex(name string) int {
	for i, p := range s.Params {
		if p.Name == name {
			return i
		}
	}

	return -1
}

// SlotIndex returns the index of the provider slot called name, or -1.
func (s Spec) SlotIndex(name string) int {
	for i, slot := range s.Slots {
		if slot.Name == name {
			return i
		}
	}

	return -1
}

// Create queues the node and all its ports on b. Every port gets the given
// channel layout.
func (s Spec) Create(b *dspgraph.CommandBlock, channels int, format dspgraph.SoundFormat) dspgraph.NodeHandle {
	node := b.CreateNode(s.Kernel, s.Params, s.Slots)
	for range s.Inlets {
		b.AddInletPort(node, channels, format)
	}

	for range s.Outlets {
		b.AddOutletPort(node, channels, format)
	}

	return node
}

// Registry maps kernel names to their factories.
type Registry struct {
	factories map[string]Factory
}

var errDuplicateKernel = errors.New("duplicate kernel")

// ErrUnknownKernel is returned by Registry.Build for unregistered names.
var ErrUnknownKernel = errors.New("kernels: unknown kernel")

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given kernel name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("empty kernel name")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", errDuplicateKernel, name)
	}

	r.factories[name] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	err := r.Register(name, factory)
	if err != nil {
		panic("kernels registry: " + err.Error())
	}
}

// Lookup returns the factory for the given kernel name, or nil.
func (r *Registry) Lookup(name string) Factory {
	return r.factories[name]
}

// Names returns the registered kernel names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Build looks up name and runs its factory.
func (r *Registry) Build(name string, cfg Config) (Spec, error) {
	factory := r.Lookup(name)
	if factory == nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}

	spec, err := factory(cfg)
	if err != nil {
		return Spec{}, fmt.Errorf("kernels: %s: %w", name, err)
	}

	return spec, nil
}

// Kernel names of the default registry.
const (
	NamePassthrough = "passthrough"
	NameConstant    = "constant"
	NameGain        = "gain"
	NameOscillator  = "oscillator"
	NameNoise       = "noise"
	NameLowpass     = "lowpass"
	NameDelay       = "delay"
	NameMixer       = "mixer"
	NamePlayer      = "player"
	NameMeter       = "meter"
	NameAnalyzer    = "analyzer"
)

// DefaultRegistry returns a Registry pre-populated with all built-in kernels.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(NamePassthrough, newPassthrough)
	r.MustRegister(NameConstant, newConstant)
	r.MustRegister(NameGain, newGain)
	r.MustRegister(NameOscillator, newOscillator)
	r.MustRegister(NameNoise, newNoise)
	r.MustRegister(NameLowpass, newLowpass)
	r.MustRegister(NameDelay, newDelay)
	r.MustRegister(NameMixer, newMixer)
	r.MustRegister(NamePlayer, newPlayer)
	r.MustRegister(NameMeter, newMeter)
	r.MustRegister(NameAnalyzer, newAnalyzer)

	return r
}
