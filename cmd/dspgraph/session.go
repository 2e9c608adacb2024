package main

import (
	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/cwbudde/algo-dspgraph/dsp/kernels"
	"github.com/cwbudde/algo-dspgraph/internal/patch"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// session is a loaded patch running in its own graph.
type session struct {
	graph    *dspgraph.Graph
	instance *patch.Instance
	logger   zerolog.Logger
	handlers []dspgraph.HandlerID
}

func openSession(path string, reg prometheus.Registerer, logger zerolog.Logger) (*session, error) {
	p, err := patch.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load the patch")
	}

	g, err := p.NewGraph(dspgraph.WithLogger(logger), dspgraph.WithRegisterer(reg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the graph")
	}

	s := &session{graph: g, logger: logger}

	if err := s.watchEvents(); err != nil {
		g.Dispose()
		return nil, err
	}

	s.instance, err = patch.Build(g, p, kernels.DefaultRegistry(), logger)
	if err != nil {
		g.Dispose()
		return nil, errors.Wrap(err, "failed to build the patch")
	}

	logger.Info().
		Str("patch", path).
		Int("nodes", g.NodeCount()-1).
		Int("connections", g.ConnectionCount()).
		Msg("Patch loaded")

	return s, nil
}

// watchEvents logs node faults, meter readings and players running out.
func (s *session) watchEvents() error {
	fault, err := dspgraph.AddNodeEventHandler(s.graph, func(node dspgraph.NodeHandle, ev dspgraph.NodeFaultEvent) {
		s.logger.Error().Err(ev.Err).Stringer("node", node).Msg("Node fault")
	})
	if err != nil {
		return errors.Wrap(err, "failed to watch node faults")
	}

	meter, err := dspgraph.AddNodeEventHandler(s.graph, func(node dspgraph.NodeHandle, ev kernels.MeterEvent) {
		s.logger.Debug().
			Stringer("node", node).
			Uint64("clock", ev.Clock).
			Floats64("peak", ev.Peak[:ev.Channels]).
			Floats64("rms", ev.RMS[:ev.Channels]).
			Msg("Level")
	})
	if err != nil {
		return errors.Wrap(err, "failed to watch meters")
	}

	ended, err := dspgraph.AddNodeEventHandler(s.graph, func(node dspgraph.NodeHandle, ev kernels.PlayerEndedEvent) {
		s.logger.Info().Stringer("node", node).Uint64("clock", ev.Clock).Msg("Player ended")
	})
	if err != nil {
		return errors.Wrap(err, "failed to watch players")
	}

	s.handlers = append(s.handlers, fault, meter, ended)

	return nil
}

func (s *session) close() {
	s.instance.Close()

	for _, id := range s.handlers {
		s.graph.RemoveNodeEventHandler(id)
	}

	if err := s.graph.Dispose(); err != nil && !errors.Is(err, dspgraph.ErrGraphDisposed) {
		s.logger.Warn().Err(err).Msg("Graph dispose failed")
	}
}
