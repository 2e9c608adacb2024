//go:build headless

package output

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
)

// OtoPlayer is unavailable in headless builds.
type OtoPlayer struct{}

// NewOtoPlayer always fails in headless builds.
func NewOtoPlayer(*Renderer, time.Duration) (*OtoPlayer, error) {
	return nil, fmt.Errorf("%w: built without audio output", dspgraph.ErrUnsupportedPlatform)
}

func (p *OtoPlayer) Start()          {}
func (p *OtoPlayer) Stop()           {}
func (p *OtoPlayer) IsPlaying() bool { return false }
func (p *OtoPlayer) Close() error    { return nil }
