package main

import (
	"context"
	"net/http"
	"time"

	"github.com/cwbudde/algo-dspgraph/dsp/output"
	"github.com/cwbudde/algo-dspgraph/internal/patch"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errPlaybackDone = errors.New("playback done")

func runPlay(ctx context.Context, cfg *config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	s, err := openSession(cfg.patch, reg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	r, err := output.NewRenderer(s.graph)
	if err != nil {
		return errors.Wrap(err, "failed to create the renderer")
	}

	player, err := output.NewOtoPlayer(r, cfg.latency)
	if err != nil {
		return errors.Wrap(err, "failed to open the audio device")
	}
	defer player.Close()

	eg, ctx := errgroup.WithContext(ctx)

	if cfg.watch {
		ramp := uint32(cfg.ramp.Seconds() * s.graph.SampleRate())
		eg.Go(func() error {
			return patch.Watch(ctx, cfg.patch, s.instance, ramp)
		})
	}

	if cfg.metrics != "" {
		srv := &http.Server{
			Addr:              cfg.metrics,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		eg.Go(func() error {
			logger.Info().Str("addr", cfg.metrics).Msg("Serving metrics")

			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server failed")
			}

			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	eg.Go(func() error {
		if cfg.seconds <= 0 {
			<-ctx.Done()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(cfg.seconds * float64(time.Second))):
			return errPlaybackDone
		}
	})

	player.Start()
	logger.Info().Str("patch", cfg.patch).Msg("Playing")

	err = eg.Wait()
	player.Stop()

	if err != nil && !errors.Is(err, errPlaybackDone) {
		return err
	}

	return nil
}
