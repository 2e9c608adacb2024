package kernels

import (
	"math"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
)

// Config holds the construction settings of one node, typically parsed
// from a patch file. Settings that can change while the graph runs are
// parameters instead; their Num entry only sets the default.
type Config struct {
	// Channels is the channel count of the node's ports. Kernels that keep
	// per-channel state size it from here; 0 reads as 1.
	Channels int
	Num      map[string]float64
	Str      map[string]string
}

func (c Config) channels() int {
	return min(max(c.Channels, 1), dspgraph.MaxPortChannels)
}

// GetNum safely extracts a numeric setting, returning def if missing or invalid.
func (c Config) GetNum(key string, def float64) float64 {
	if c.Num == nil {
		return def
	}

	v, ok := c.Num[key]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}

	return v
}

// GetInt is GetNum truncated to an int.
func (c Config) GetInt(key string, def int) int {
	return int(c.GetNum(key, float64(def)))
}

// GetStr extracts a string setting, returning def if missing or empty.
func (c Config) GetStr(key, def string) string {
	if v := c.Str[key]; v != "" {
		return v
	}

	return def
}
