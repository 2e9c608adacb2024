package dspgraph

import (
	"fmt"
	"math"
	"sort"
)

// ParameterDescription declares one automatable kernel parameter.
type ParameterDescription struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

func (d ParameterDescription) validate() error {
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) || math.IsNaN(d.Default) {
		return fmt.Errorf("%w: %q has NaN bounds", ErrInvalidParameter, d.Name)
	}

	if d.Min > d.Max {
		return fmt.Errorf("%w: %q min %g > max %g", ErrInvalidParameter, d.Name, d.Min, d.Max)
	}

	return nil
}

// Keyframe pins a parameter value to a sample clock.
type Keyframe struct {
	Clock uint64
	Value float64
}

// ParameterState is the trajectory of one parameter or attenuation channel.
//
// Before the first keyframe the parameter holds its current value. Between
// two keyframes it interpolates linearly in sample space, and after the last
// keyframe it holds that keyframe's value.
type ParameterState struct {
	value float64
	keys  []Keyframe
	min   float64
	max   float64
}

func newParameterState(d ParameterDescription) ParameterState {
	p := ParameterState{min: d.Min, max: d.Max}
	if p.min == 0 && p.max == 0 {
		p.min, p.max = math.Inf(-1), math.Inf(1)
	}

	p.value = p.clamp(d.Default)

	return p
}

func newAttenuationState(v float64) ParameterState {
	return ParameterState{value: v, min: math.Inf(-1), max: math.Inf(1)}
}

// Value returns the value the parameter held at the end of the last mix.
func (p *ParameterState) Value() float64 {
	return p.value
}

// Keys returns the pending keyframes.
func (p *ParameterState) Keys() []Keyframe {
	return p.keys
}

// ValueAt evaluates the trajectory at clock.
func (p *ParameterState) ValueAt(clock uint64) float64 {
	n := len(p.keys)
	if n == 0 || clock < p.keys[0].Clock {
		return p.value
	}

	// i is the last key at or before clock.
	i := sort.Search(n, func(k int) bool { return p.keys[k].Clock > clock }) - 1
	if i >= n-1 {
		return p.keys[n-1].Value
	}

	a, b := p.keys[i], p.keys[i+1]
	t := float64(clock-a.Clock) / float64(b.Clock-a.Clock)

	return a.Value + (b.Value-a.Value)*t
}

// constantOver reports whether the trajectory is flat over
// [clock, clock+frames) and returns that value.
func (p *ParameterState) constantOver(clock uint64, frames int) (float64, bool) {
	n := len(p.keys)
	if n == 0 {
		return p.value, true
	}

	last := clock + uint64(frames) - 1
	if last < p.keys[0].Clock {
		return p.value, true
	}

	if clock >= p.keys[n-1].Clock {
		return p.keys[n-1].Value, true
	}

	return 0, false
}

// fill writes the per-sample trajectory starting at clock into dst.
func (p *ParameterState) fill(dst []float64, clock uint64) {
	if v, ok := p.constantOver(clock, len(dst)); ok {
		for i := range dst {
			dst[i] = v
		}

		return
	}

	for i := range dst {
		dst[i] = p.ValueAt(clock + uint64(i))
	}
}

// setFloat replaces the trajectory with a ramp from the value at now to
// value over length samples.
func (p *ParameterState) setFloat(now uint64, value float64, length uint32) {
	value = p.clamp(value)
	current := p.ValueAt(now)
	p.keys = p.keys[:0]

	if length == 0 {
		p.value = value
		return
	}

	p.value = current
	p.keys = append(p.keys,
		Keyframe{Clock: now, Value: current},
		Keyframe{Clock: now + uint64(length), Value: value},
	)
}

// addKey inserts a keyframe, keeping keys ordered by clock. Keys with equal
// clocks keep insertion order.
func (p *ParameterState) addKey(clock uint64, value float64) {
	k := Keyframe{Clock: clock, Value: p.clamp(value)}

	n := len(p.keys)
	if n == 0 || p.keys[n-1].Clock <= clock {
		p.keys = append(p.keys, k)
		return
	}

	i := sort.Search(n, func(j int) bool { return p.keys[j].Clock > clock })
	p.keys = append(p.keys, Keyframe{})
	copy(p.keys[i+1:], p.keys[i:])
	p.keys[i] = k
}

// sustain drops every keyframe after clock and pins the trajectory to its
// value at clock.
func (p *ParameterState) sustain(clock uint64) {
	if len(p.keys) == 0 {
		return
	}

	v := p.ValueAt(clock)
	i := sort.Search(len(p.keys), func(j int) bool { return p.keys[j].Clock > clock })
	p.keys = append(p.keys[:i], Keyframe{Clock: clock, Value: v})
}

// advance retires keyframes that lie entirely before clock, the first
// sample of the next mix.
func (p *ParameterState) advance(clock uint64) {
	p.value = p.ValueAt(clock)

	drop := 0
	for drop+1 < len(p.keys) && p.keys[drop+1].Clock <= clock {
		drop++
	}

	if drop+1 == len(p.keys) && p.keys[drop].Clock <= clock {
		p.keys = p.keys[:0]
		return
	}

	if drop > 0 {
		p.keys = append(p.keys[:0], p.keys[drop:]...)
	}
}

func (p *ParameterState) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return p.value
	}

	return math.Min(math.Max(v, p.min), p.max)
}

// ParameterReader gives a kernel read access to its node's parameters for
// the current mix.
type ParameterReader struct {
	params []ParameterState
	clock  uint64
	frames int
}

// Count returns the number of parameters.
func (r ParameterReader) Count() int {
	return len(r.params)
}

// GetFloat returns parameter index at sampleOffset within the current mix.
// Unknown indices read as 0.
func (r ParameterReader) GetFloat(index, sampleOffset int) float64 {
	if index < 0 || index >= len(r.params) {
		return 0
	}

	if sampleOffset < 0 {
		sampleOffset = 0
	}

	return r.params[index].ValueAt(r.clock + uint64(sampleOffset))
}

// Constant reports whether parameter index is flat over the whole mix.
func (r ParameterReader) Constant(index int) (float64, bool) {
	if index < 0 || index >= len(r.params) {
		return 0, true
	}

	return r.params[index].constantOver(r.clock, r.frames)
}

// Fill writes the per-sample values of parameter index into dst, starting at
// the first sample of the mix.
func (r ParameterReader) Fill(index int, dst []float64) {
	if index < 0 || index >= len(r.params) {
		clear(dst)
		return
	}

	r.params[index].fill(dst, r.clock)
}
