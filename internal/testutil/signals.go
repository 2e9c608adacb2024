package testutil

import "math"

// Sine generates frames samples of a sine starting at phase 0.
func Sine(freqHz, sampleRate, amplitude float64, frames int) []float64 {
	out := make([]float64, frames)
	step := 2 * math.Pi * freqHz / sampleRate

	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}

	return out
}

// Impulse generates a unit impulse at pos.
func Impulse(frames, pos int) []float64 {
	out := make([]float64, frames)
	if pos >= 0 && pos < frames {
		out[pos] = 1
	}

	return out
}

// DC generates a constant signal.
func DC(value float64, frames int) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = value
	}

	return out
}

// Interleave merges equally long channel buffers into interleaved frames.
func Interleave(channels ...[]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}

	frames := len(channels[0])
	out := make([]float64, frames*len(channels))

	for ch, data := range channels {
		for i := 0; i < frames && i < len(data); i++ {
			out[i*len(channels)+ch] = data[i]
		}
	}

	return out
}

// Channel extracts channel ch of interleaved samples.
func Channel(interleaved []float64, channels, ch int) []float64 {
	out := make([]float64, len(interleaved)/channels)
	for i := range out {
		out[i] = interleaved[i*channels+ch]
	}

	return out
}
