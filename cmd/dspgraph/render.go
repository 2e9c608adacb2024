package main

import (
	"context"
	"os"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/output"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func runRender(ctx context.Context, cfg *config, logger zerolog.Logger) error {
	s, err := openSession(cfg.patch, nil, logger)
	if err != nil {
		return err
	}
	defer s.close()

	var opts []output.Option
	if cfg.dither {
		opts = append(opts, output.WithDither(cfg.bits, time.Now().UnixNano()))
	}

	r, err := output.NewRenderer(s.graph, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create the renderer")
	}

	f, err := os.Create(cfg.output)
	if err != nil {
		return errors.Wrap(err, "failed to create the output file")
	}

	frames := int(cfg.seconds * s.graph.SampleRate())
	start := time.Now()

	done := make(chan error, 1)
	go func() { done <- output.WriteWAV(f, r, frames, cfg.bits/8) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		// WriteWAV only stops once the renderer fails.
		s.graph.Dispose()
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(cfg.output)
		return errors.Wrap(err, "failed to write "+cfg.output)
	}

	logger.Info().
		Str("output", cfg.output).
		Int("frames", frames).
		Dur("took", time.Since(start)).
		Msg("Rendered")

	return nil
}
