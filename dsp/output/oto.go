//go:build !headless

package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays a Renderer on the system audio device. Mixes are
// rendered on oto's callback goroutine.
type OtoPlayer struct {
	ctx    *oto.Context
	player *oto.Player

	// sources converts the renderer to float32 frames.
	sources   *dspgraph.ProviderRegistry
	id        dspgraph.ProviderID
	frameSize int

	mu      sync.Mutex
	started bool
}

// NewOtoPlayer opens the audio device for r's sample rate and channel
// count. latency sets oto's buffer; 0 picks the platform default. Only one
// oto context can exist per process.
func NewOtoPlayer(r *Renderer, latency time.Duration) (*OtoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   int(r.SampleRate()),
		ChannelCount: r.ChannelCount(),
		Format:       oto.FormatFloat32LE,
		BufferSize:   latency,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dspgraph.ErrMissingBackend, err)
	}
	<-ready

	p := &OtoPlayer{
		ctx:       ctx,
		sources:   dspgraph.NewProviderRegistry(),
		frameSize: 4 * r.ChannelCount(),
	}
	p.id = p.sources.Register(r)
	p.player = ctx.NewPlayer(p)

	return p, nil
}

// Read is called by oto for more audio. It returns io.EOF once the
// renderer failed.
func (p *OtoPlayer) Read(b []byte) (int, error) {
	frames := len(b) / p.frameSize

	n, err := p.sources.ReadSamples(p.id, dspgraph.SampleFloat32LE, b, frames)
	if err != nil {
		return 0, err
	}

	if n == 0 && frames > 0 {
		return 0, io.EOF
	}

	clear(b[n*p.frameSize:])

	return len(b), nil
}

// Start begins playback.
func (p *OtoPlayer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started && p.player != nil {
		p.player.Play()
		p.started = true
	}
}

// Stop pauses playback. Start resumes it.
func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started && p.player != nil {
		p.player.Pause()
		p.started = false
	}
}

// IsPlaying reports whether the device is consuming audio.
func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.player != nil && p.player.IsPlaying()
}

// Close stops playback and releases the player.
func (p *OtoPlayer) Close() error {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player == nil {
		return nil
	}

	err := p.player.Close()
	p.player = nil

	return err
}
