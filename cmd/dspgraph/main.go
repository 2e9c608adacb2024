// Command dspgraph renders and plays audio graphs described by TOML patch
// files.
//
//	dspgraph render patch.toml -o out.wav -s 30
//	dspgraph play patch.toml --watch
//	dspgraph kernels
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/integrii/flaggy"
	"github.com/rs/zerolog"
)

// AppName is the app name
const AppName = "dspgraph"

// AppDesc is the app description
const AppDesc = "Render and play node based audio graphs"

var version = "unknown"

const defaultRenderSeconds = 10

func main() {
	log.SetFlags(0)

	cfg := newZeroConfig()

	cmd := doFlags(&cfg)
	if cmd == cmdNone {
		return
	}

	chk(cfg.validate(), "invalid config")

	logger := newLogger(cfg.verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	switch cmd {
	case cmdRender:
		chk(runRender(ctx, &cfg, logger), "failed to render")
	case cmdPlay:
		chk(runPlay(ctx, &cfg, logger), "failed to play")
	}
}

type command int

const (
	cmdNone command = iota
	cmdRender
	cmdPlay
)

func doFlags(cfg *config) command {
	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc
	parser.Version = version

	renderCmd := &flaggy.Subcommand{
		Name:        "render",
		ShortName:   "r",
		Description: "render a patch to a WAV file",
	}
	renderCmd.AddPositionalValue(&cfg.patch, "patch", 1, true, "patch file")
	renderCmd.String(&cfg.output, "o", "output", "output WAV file")
	renderCmd.Float64(&cfg.seconds, "s", "seconds", "seconds to render")
	renderCmd.Int(&cfg.bits, "b", "bits", "bits per sample (8, 16, 24)")
	renderCmd.Bool(&cfg.dither, "d", "dither", "add TPDF dither at the output bit depth")

	playCmd := &flaggy.Subcommand{
		Name:                 "play",
		ShortName:            "p",
		Description:          "play a patch on the default audio device",
		AdditionalHelpAppend: "\nonly parameter and attenuation changes are picked up by --watch",
	}
	playCmd.AddPositionalValue(&cfg.patch, "patch", 1, true, "patch file")
	playCmd.Float64(&cfg.seconds, "s", "seconds", "seconds to play (0 plays until interrupted)")
	playCmd.Duration(&cfg.latency, "l", "latency", "playback buffer duration")
	playCmd.Bool(&cfg.watch, "w", "watch", "reload parameter changes from the patch file")
	playCmd.Duration(&cfg.ramp, "rt", "ramp", "ramp time of reloaded values")
	playCmd.String(&cfg.metrics, "m", "metrics", "serve prometheus metrics on this address")

	kernelsCmd := &flaggy.Subcommand{
		Name:        "kernels",
		ShortName:   "k",
		Description: "list the available node kernels",
	}

	parser.AttachSubcommand(renderCmd, 1)
	parser.AttachSubcommand(playCmd, 1)
	parser.AttachSubcommand(kernelsCmd, 1)

	parser.Bool(&cfg.verbose, "v", "verbose", "enable debug logging")

	chk(parser.Parse(), "failed to parse arguments")

	switch {
	case renderCmd.Used:
		if cfg.seconds == 0 {
			cfg.seconds = defaultRenderSeconds
		}

		if cfg.output == "" {
			cfg.output = strings.TrimSuffix(cfg.patch, ".toml") + ".wav"
		}

		return cmdRender

	case playCmd.Used:
		return cmdPlay

	case kernelsCmd.Used:
		listKernels(kernels.DefaultRegistry())
		return cmdNone
	}

	parser.ShowHelp()

	return cmdNone
}

func listKernels(reg *kernels.Registry) {
	for _, name := range reg.Names() {
		spec, err := reg.Build(name, kernels.Config{})
		if err != nil {
			fmt.Printf("- %s (%v)\n", name, err)
			continue
		}

		fmt.Printf("- %s: %d in, %d out\n", name, spec.Inlets, spec.Outlets)

		for _, p := range spec.Params {
			if p.Min == 0 && p.Max == 0 {
				fmt.Printf("    %-10s default %g\n", p.Name, p.Default)
				continue
			}

			fmt.Printf("    %-10s default %g [%g, %g]\n", p.Name, p.Default, p.Min, p.Max)
		}

		for _, s := range spec.Slots {
			fmt.Printf("    %-10s provider slot\n", s.Name)
		}
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
