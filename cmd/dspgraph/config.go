package main

import (
	"errors"
	"time"
)

type config struct {
	// patch is the path of the TOML patch file
	patch string
	// output is the WAV file written by render
	output string
	// seconds of audio to render, or to play before exiting. Zero renders
	// defaultRenderSeconds or plays until interrupted
	seconds float64
	// bits per WAV sample (8, 16 or 24)
	bits int
	// dither adds TPDF dither at the output bit depth
	dither bool
	// latency is the playback buffer duration
	latency time.Duration
	// watch reloads parameter and attenuation changes from the patch file
	watch bool
	// ramp is the time changed values take to reach their new level
	ramp time.Duration
	// metrics is the listen address of the prometheus endpoint, empty to
	// disable it
	metrics string
	// verbose enables debug logging
	verbose bool
}

func newZeroConfig() config {
	return config{
		bits:    16,
		latency: 50 * time.Millisecond,
		ramp:    20 * time.Millisecond,
	}
}

func (cfg *config) validate() error {
	if cfg.patch == "" {
		return errors.New("no patch file given")
	}

	if cfg.seconds < 0 {
		return errors.New("negative duration")
	}

	switch cfg.bits {
	case 8, 16, 24:
	default:
		return errors.New("bit depth must be 8, 16 or 24")
	}

	if cfg.latency <= 0 {
		return errors.New("latency must be positive")
	}

	if cfg.ramp < 0 {
		return errors.New("negative ramp time")
	}

	return nil
}
