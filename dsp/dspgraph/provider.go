package dspgraph

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ProviderID identifies a registered sample provider. The zero ID is never
// assigned and reads as silence.
type ProviderID uint32

// SampleProvider is a source of interleaved samples read by node kernels on
// the mixing side. Read must not block.
type SampleProvider interface {
	ChannelCount() int
	SampleRate() float64
	// Read fills dst with whole interleaved frames and returns the number of
	// frames written.
	Read(dst []float64) int
}

// SampleFormat is the encoding used by ProviderRegistry.ReadSamples.
type SampleFormat int

const (
	SampleFloat64 SampleFormat = iota
	SampleFloat32LE
	SampleInt16LE
	SampleInt16BE
	SampleUint8
)

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFloat64:
		return 8
	case SampleFloat32LE:
		return 4
	case SampleInt16LE, SampleInt16BE:
		return 2
	case SampleUint8:
		return 1
	default:
		return 0
	}
}

// ProviderSlotDescription declares a sample provider slot of a node. A
// negative Size declares a variable-length slot.
type ProviderSlotDescription struct {
	Name string
	Size int
}

// ProviderRegistry maps provider IDs to providers. Lookups are lock-free:
// writers publish a new copy of the table.
type ProviderRegistry struct {
	mu    sync.Mutex
	next  ProviderID
	table atomic.Pointer[map[ProviderID]SampleProvider]
}

// NewProviderRegistry returns an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{}
	empty := map[ProviderID]SampleProvider{}
	r.table.Store(&empty)

	return r
}

// Register adds p and returns its ID.
func (r *ProviderRegistry) Register(p SampleProvider) ProviderID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next

	old := *r.table.Load()
	next := make(map[ProviderID]SampleProvider, len(old)+1)

	for k, v := range old {
		next[k] = v
	}

	next[id] = p
	r.table.Store(&next)

	return id
}

// Unregister removes id. Kernels still referencing it read silence.
func (r *ProviderRegistry) Unregister(id ProviderID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.table.Load()
	if _, ok := old[id]; !ok {
		return false
	}

	next := make(map[ProviderID]SampleProvider, len(old))

	for k, v := range old {
		if k != id {
			next[k] = v
		}
	}

	r.table.Store(&next)

	return true
}

// Get returns the provider registered under id.
func (r *ProviderRegistry) Get(id ProviderID) (SampleProvider, bool) {
	p, ok := (*r.table.Load())[id]
	return p, ok
}

// ChannelCount returns the channel count of provider id, or 0.
func (r *ProviderRegistry) ChannelCount(id ProviderID) int {
	if p, ok := r.Get(id); ok {
		return p.ChannelCount()
	}

	return 0
}

// SampleRate returns the sample rate of provider id, or 0.
func (r *ProviderRegistry) SampleRate(id ProviderID) float64 {
	if p, ok := r.Get(id); ok {
		return p.SampleRate()
	}

	return 0
}

// ReadFloats reads whole frames from provider id into dst.
func (r *ProviderRegistry) ReadFloats(id ProviderID, dst []float64) (int, error) {
	p, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: provider %d", ErrInvalidHandle, id)
	}

	return p.Read(dst), nil
}

// ReadSamples reads up to frames frames from provider id into dst, encoded
// as format, and returns the number of frames read.
func (r *ProviderRegistry) ReadSamples(id ProviderID, format SampleFormat, dst []byte, frames int) (int, error) {
	p, ok := r.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: provider %d", ErrInvalidHandle, id)
	}

	size := format.BytesPerSample()
	if size == 0 {
		return 0, fmt.Errorf("%w: sample format %d", ErrInvalidParameter, int(format))
	}

	channels := p.ChannelCount()
	if channels <= 0 {
		return 0, nil
	}

	if limit := len(dst) / (size * channels); frames > limit {
		frames = limit
	}

	var scratch [512]float64

	chunk := len(scratch) / channels
	if chunk == 0 {
		return 0, fmt.Errorf("%w: %d provider channels", ErrInvalidParameter, channels)
	}

	read := 0
	for read < frames {
		want := min(chunk, frames-read)

		got := p.Read(scratch[:want*channels])
		if got <= 0 {
			break
		}

		encodeSamples(dst[read*channels*size:], scratch[:got*channels], format)
		read += got

		if got < want {
			break
		}
	}

	return read, nil
}

func encodeSamples(dst []byte, src []float64, format SampleFormat) {
	switch format {
	case SampleFloat64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
		}
	case SampleFloat32LE:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		}
	case SampleInt16LE:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(toInt16(v)))
		}
	case SampleInt16BE:
		for i, v := range src {
			binary.BigEndian.PutUint16(dst[i*2:], uint16(toInt16(v)))
		}
	case SampleUint8:
		for i, v := range src {
			dst[i] = uint8(int(toInt16(v))>>8 + 128)
		}
	}
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}

// SliceProvider serves interleaved samples from memory, optionally looping.
// Read and Seek must be called from the same goroutine, normally the node
// job reading it.
type SliceProvider struct {
	samples    []float64
	channels   int
	sampleRate float64
	loop       bool
	pos        int
}

// NewSliceProvider returns a provider over interleaved samples.
func NewSliceProvider(samples []float64, channels int, sampleRate float64, loop bool) *SliceProvider {
	if channels < 1 {
		channels = 1
	}

	return &SliceProvider{
		samples:    samples[:len(samples)-len(samples)%channels],
		channels:   channels,
		sampleRate: sampleRate,
		loop:       loop,
	}
}

func (p *SliceProvider) ChannelCount() int   { return p.channels }
func (p *SliceProvider) SampleRate() float64 { return p.sampleRate }
func (p *SliceProvider) Frames() int         { return len(p.samples) / p.channels }
func (p *SliceProvider) Position() int       { return p.pos / p.channels }

// Seek moves the read position to frame, clamped to the provider length.
func (p *SliceProvider) Seek(frame int) {
	frame = max(0, min(frame, p.Frames()))
	p.pos = frame * p.channels
}

func (p *SliceProvider) Read(dst []float64) int {
	want := len(dst) / p.channels * p.channels
	n := 0

	for n < want {
		if p.pos >= len(p.samples) {
			if !p.loop || len(p.samples) == 0 {
				break
			}

			p.pos = 0
		}

		c := copy(dst[n:want], p.samples[p.pos:])
		n += c
		p.pos += c
	}

	return n / p.channels
}

// ProviderReader gives a kernel access to the providers bound to its node.
type ProviderReader struct {
	slots    [][]ProviderID
	registry *ProviderRegistry
}

// Slots returns the number of provider slots.
func (r ProviderReader) Slots() int {
	return len(r.slots)
}

// Count returns the number of providers in slot.
func (r ProviderReader) Count(slot int) int {
	if slot < 0 || slot >= len(r.slots) {
		return 0
	}

	return len(r.slots[slot])
}

// ID returns the provider at index of slot, or 0.
func (r ProviderReader) ID(slot, index int) ProviderID {
	if slot < 0 || slot >= len(r.slots) || index < 0 || index >= len(r.slots[slot]) {
		return 0
	}

	return r.slots[slot][index]
}

// Provider returns the provider at index of slot.
func (r ProviderReader) Provider(slot, index int) (SampleProvider, bool) {
	id := r.ID(slot, index)
	if id == 0 || r.registry == nil {
		return nil, false
	}

	return r.registry.Get(id)
}

// Registry returns the graph's provider registry.
func (r ProviderReader) Registry() *ProviderRegistry {
	return r.registry
}
