package dspgraph

import "fmt"

// MaxPortChannels is the largest channel count of a single port.
const MaxPortChannels = 32

// SoundFormat describes the speaker layout of a port or of the graph output.
type SoundFormat int

const (
	// FormatRaw carries an arbitrary number of channels without layout.
	FormatRaw SoundFormat = iota
	FormatMono
	FormatStereo
	FormatQuad
	FormatSurround
	FormatFiveDot1
	FormatSevenDot1
)

var formatChannels = [...]int{
	FormatRaw:       0,
	FormatMono:      1,
	FormatStereo:    2,
	FormatQuad:      4,
	FormatSurround:  5,
	FormatFiveDot1:  6,
	FormatSevenDot1: 8,
}

var formatNames = [...]string{
	FormatRaw:       "raw",
	FormatMono:      "mono",
	FormatStereo:    "stereo",
	FormatQuad:      "quad",
	FormatSurround:  "surround",
	FormatFiveDot1:  "5.1",
	FormatSevenDot1: "7.1",
}

// Valid reports whether f is a known format.
func (f SoundFormat) Valid() bool {
	return f >= FormatRaw && int(f) < len(formatChannels)
}

// Channels returns the channel count implied by f, or 0 for FormatRaw.
func (f SoundFormat) Channels() int {
	if !f.Valid() {
		return 0
	}

	return formatChannels[f]
}

func (f SoundFormat) String() string {
	if !f.Valid() {
		return fmt.Sprintf("SoundFormat(%d)", int(f))
	}

	return formatNames[f]
}

// ParseSoundFormat returns the format named s.
func ParseSoundFormat(s string) (SoundFormat, error) {
	for i, name := range formatNames {
		if name == s {
			return SoundFormat(i), nil
		}
	}

	return FormatRaw, fmt.Errorf("dspgraph: unknown sound format %q", s)
}

// Port describes one inlet or outlet of a node.
type Port struct {
	Channels int
	Format   SoundFormat
}

func (p Port) validate() error {
	if !p.Format.Valid() {
		return fmt.Errorf("%w: unknown format %d", ErrInvalidParameter, int(p.Format))
	}

	if p.Channels < 1 || p.Channels > MaxPortChannels {
		return fmt.Errorf("%w: %d channels", ErrInvalidParameter, p.Channels)
	}

	if n := p.Format.Channels(); n != 0 && n != p.Channels {
		return fmt.Errorf("%w: format %s needs %d channels, got %d", ErrInvalidParameter, p.Format, n, p.Channels)
	}

	return nil
}

// ExecutionMode selects how BeginMix runs the node jobs. Modes are flags.
type ExecutionMode uint32

const (
	// Jobified runs independent nodes in parallel on the worker pool.
	Jobified ExecutionMode = 1 << iota
	// Synchronous runs all nodes inline on the calling goroutine.
	Synchronous
	// ExecuteNodesWithNoOutputs also runs nodes that do not feed the root,
	// such as meters and analyzers.
	ExecuteNodesWithNoOutputs
)

func (m ExecutionMode) has(flag ExecutionMode) bool {
	return m&flag != 0
}
