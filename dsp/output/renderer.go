package output

import (
	"context"
	"fmt"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

type config struct {
	frames     int
	mode       dspgraph.ExecutionMode
	ditherBits int
	ditherSeed int64
}

// Option configures a Renderer.
type Option func(*config)

// WithFrames sets the frames per mix. It defaults to the graph buffer size.
func WithFrames(n int) Option {
	return func(c *config) { c.frames = n }
}

// WithMode sets the execution mode passed to BeginMix. The zero mode uses
// the graph default.
func WithMode(m dspgraph.ExecutionMode) Option {
	return func(c *config) { c.mode = m }
}

// WithDither adds TPDF dither of one LSB at the given bit depth to every
// mix, for output that is quantized afterwards.
func WithDither(bits int, seed int64) Option {
	return func(c *config) {
		c.ditherBits = bits
		c.ditherSeed = seed
	}
}

// Renderer pulls fixed-size mixes from a graph. It implements
// dspgraph.SampleProvider, so its output can be read through a
// ProviderRegistry in any sample format.
//
// A Renderer is not safe for concurrent use. It is normally owned by the
// goroutine of an audio callback.
type Renderer struct {
	g      *dspgraph.Graph
	frames int
	mode   dspgraph.ExecutionMode

	dither     *vecmath.DitherState
	ditherGain float64

	buf []float64
	pos int
	err error
}

// NewRenderer returns a Renderer for g.
func NewRenderer(g *dspgraph.Graph, opts ...Option) (*Renderer, error) {
	cfg := config{frames: g.BufferSize()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.frames <= 0 || cfg.frames > g.BufferSize() {
		return nil, fmt.Errorf("%w: %d frames per mix, buffer size %d", dspgraph.ErrFrameCount, cfg.frames, g.BufferSize())
	}

	if cfg.ditherBits != 0 && (cfg.ditherBits < 2 || cfg.ditherBits > 32) {
		return nil, fmt.Errorf("%w: dither bit depth %d", dspgraph.ErrInvalidParameter, cfg.ditherBits)
	}

	r := &Renderer{
		g:      g,
		frames: cfg.frames,
		mode:   cfg.mode,
		buf:    make([]float64, cfg.frames*g.Channels()),
	}
	r.pos = len(r.buf)

	if cfg.ditherBits != 0 {
		r.dither = vecmath.NewDitherState(cfg.ditherSeed)
		r.ditherGain = 1 / float64(uint64(1)<<(cfg.ditherBits-1))
	}

	return r, nil
}

// Graph returns the rendered graph.
func (r *Renderer) Graph() *dspgraph.Graph { return r.g }

// ChannelCount returns the number of interleaved channels.
func (r *Renderer) ChannelCount() int { return r.g.Channels() }

// SampleRate returns the graph sample rate.
func (r *Renderer) SampleRate() float64 { return r.g.SampleRate() }

// Frames returns the frames per mix.
func (r *Renderer) Frames() int { return r.frames }

// Err returns the error that stopped the renderer, if any.
func (r *Renderer) Err() error { return r.err }

// Next renders one mix and returns it interleaved. The slice is reused by
// the next call. Once a mix fails every later call returns the same error.
func (r *Renderer) Next() ([]float64, error) {
	if err := r.mix(); err != nil {
		return nil, err
	}

	r.pos = len(r.buf)

	return r.buf, nil
}

func (r *Renderer) mix() error {
	if r.err != nil {
		return r.err
	}

	if err := r.g.BeginMix(r.frames, r.mode); err != nil {
		r.err = err
		return err
	}

	if err := r.g.ReadMix(r.buf, r.frames); err != nil {
		r.err = err
		return err
	}

	if r.dither != nil {
		vecmath.AddDitherTPDF(r.buf, r.ditherGain, r.dither)
	}

	r.pos = 0

	return nil
}

// Read fills dst with whole interleaved frames, mixing as needed, and
// returns the number of frames written. It only returns short once the
// renderer failed; see Err.
func (r *Renderer) Read(dst []float64) int {
	channels := r.g.Channels()
	want := len(dst) / channels * channels
	n := 0

	for n < want {
		if r.pos == len(r.buf) {
			if r.mix() != nil {
				break
			}
		}

		c := copy(dst[n:want], r.buf[r.pos:])
		n += c
		r.pos += c
	}

	return n / channels
}

// Render mixes frames frames and passes them to fn one mix at a time. The
// final block is shortened to the requested total.
func (r *Renderer) Render(ctx context.Context, frames int, fn func(block []float64) error) error {
	channels := r.g.Channels()

	for done := 0; done < frames; {
		if err := ctx.Err(); err != nil {
			return err
		}

		block, err := r.Next()
		if err != nil {
			return err
		}

		n := min(r.frames, frames-done)
		if err := fn(block[:n*channels]); err != nil {
			return err
		}

		done += n
	}

	return nil
}
