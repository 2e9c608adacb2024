package dspgraph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type graphMetrics struct {
	registerer prometheus.Registerer
	collectors []prometheus.Collector

	mixes          prometheus.Counter
	scheduleTime   prometheus.Histogram
	blocksApplied  prometheus.Counter
	blocksRejected prometheus.Counter
	planRebuilds   prometheus.Counter
	nodeFaults     prometheus.Counter
	eventsDropped  prometheus.Counter
	nodes          prometheus.Gauge
	connections    prometheus.Gauge
}

func newGraphMetrics(reg prometheus.Registerer, g *Graph) *graphMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	labels := prometheus.Labels{"graph": g.id.String()}
	m := &graphMetrics{registerer: reg}
	f := promauto.With(reg)

	m.mixes = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_mixes_total",
		Help:        "Total number of mixes begun",
		ConstLabels: labels,
	})
	m.scheduleTime = f.NewHistogram(prometheus.HistogramOpts{
		Name:        "dspgraph_begin_mix_seconds",
		Help:        "Time spent in BeginMix applying commands and scheduling jobs",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	m.blocksApplied = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_command_blocks_applied_total",
		Help:        "Total number of command blocks applied by BeginMix",
		ConstLabels: labels,
	})
	m.blocksRejected = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_command_blocks_rejected_total",
		Help:        "Total number of command blocks rejected by Complete",
		ConstLabels: labels,
	})
	m.planRebuilds = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_plan_rebuilds_total",
		Help:        "Total number of execution plan rebuilds",
		ConstLabels: labels,
	})
	m.nodeFaults = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_node_faults_total",
		Help:        "Total number of node kernel faults",
		ConstLabels: labels,
	})
	m.eventsDropped = f.NewCounter(prometheus.CounterOpts{
		Name:        "dspgraph_events_dropped_total",
		Help:        "Total number of node events dropped on a full queue",
		ConstLabels: labels,
	})
	m.nodes = f.NewGauge(prometheus.GaugeOpts{
		Name:        "dspgraph_nodes",
		Help:        "Number of live nodes including the root",
		ConstLabels: labels,
	})
	m.connections = f.NewGauge(prometheus.GaugeOpts{
		Name:        "dspgraph_connections",
		Help:        "Number of live connections",
		ConstLabels: labels,
	})

	memory := f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "dspgraph_memory_bytes",
		Help:        "Bytes held by the graph allocator",
		ConstLabels: labels,
	}, func() float64 { return float64(g.memory.InUse()) })
	clock := f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "dspgraph_dsp_clock_samples",
		Help:        "Current DSP clock in samples",
		ConstLabels: labels,
	}, func() float64 { return float64(g.clock.Load()) })

	m.collectors = []prometheus.Collector{
		m.mixes, m.scheduleTime, m.blocksApplied, m.blocksRejected, m.planRebuilds,
		m.nodeFaults, m.eventsDropped, m.nodes, m.connections, memory, clock,
	}

	return m
}

func (m *graphMetrics) unregister() {
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}
