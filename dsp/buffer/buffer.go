package buffer

import "fmt"

// Buffer is a planar multichannel sample buffer backed by one allocator
// block. Channel c occupies samples [c*frames, (c+1)*frames).
type Buffer struct {
	block    *Block
	channels int
	frames   int
}

// New allocates a zeroed buffer of channels × frames samples from a.
func New(a *Allocator, channels, frames int) (*Buffer, error) {
	if channels < 0 || frames < 0 {
		return nil, fmt.Errorf("%w: %d channels × %d frames", ErrInvalidSize, channels, frames)
	}

	block, err := a.AllocateFloats(channels * frames)
	if err != nil {
		return nil, err
	}

	return &Buffer{block: block, channels: channels, frames: frames}, nil
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return b.channels
}

// Frames returns the capacity in frames.
func (b *Buffer) Frames() int {
	return b.frames
}

// Channel returns the samples of channel ch.
func (b *Buffer) Channel(ch int) []float64 {
	start := ch * b.frames
	return b.block.data[start : start+b.frames : start+b.frames]
}

// Samples returns all channels back to back.
func (b *Buffer) Samples() []float64 {
	return b.block.data
}

// Zero clears the first frames samples of every channel.
func (b *Buffer) Zero(frames int) {
	if frames > b.frames {
		frames = b.frames
	}

	for ch := range b.channels {
		clear(b.Channel(ch)[:frames])
	}
}

// Interleave writes the first frames frames into dst as interleaved samples
// and returns the number of samples written.
func (b *Buffer) Interleave(dst []float64, frames int) int {
	if frames > b.frames {
		frames = b.frames
	}

	if b.channels == 0 {
		return 0
	}

	if limit := len(dst) / b.channels; frames > limit {
		frames = limit
	}

	for ch := range b.channels {
		src := b.Channel(ch)
		for i := range frames {
			dst[i*b.channels+ch] = src[i]
		}
	}

	return frames * b.channels
}

// Release returns the backing block to its allocator. The buffer must not be
// used afterwards.
func (b *Buffer) Release() error {
	if b == nil || b.block == nil {
		return nil
	}

	err := b.block.owner.Free(b.block)
	b.block = nil

	return err
}
