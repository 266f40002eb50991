package cdefine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one Registry. Every Registry owns its own
// prometheus.Registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	compileHits   prometheus.Counter
	compileMisses prometheus.Counter
	definitions   prometheus.Counter
	liveInstances prometheus.Gauge
	unitsRun      prometheus.Counter
	unitFailures  prometheus.Counter
}

// NewMetrics creates the counters on a fresh prometheus.Registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		compileHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdefine_compile_cache_hits_total",
			Help: "Total number of template compiles served from the cache",
		}),
		compileMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdefine_compile_cache_misses_total",
			Help: "Total number of templates compiled and scanned for scripts",
		}),
		definitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdefine_definitions_total",
			Help: "Total number of component names defined",
		}),
		liveInstances: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdefine_live_instances",
			Help: "Number of instances currently in the instance registry",
		}),
		unitsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdefine_behavior_units_run_total",
			Help: "Total number of behavior units invoked",
		}),
		unitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdefine_behavior_unit_failures_total",
			Help: "Total number of behavior units that returned an error",
		}),
	}
}

// Gatherer exposes the counters for scraping.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// The helpers below accept a nil receiver so components built without a
// Registry need no metrics.

func (m *Metrics) hit() {
	if m != nil {
		m.compileHits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.compileMisses.Inc()
	}
}

func (m *Metrics) defined() {
	if m != nil {
		m.definitions.Inc()
	}
}

func (m *Metrics) setLive(n int) {
	if m != nil {
		m.liveInstances.Set(float64(n))
	}
}

func (m *Metrics) ran(err error) {
	if m != nil {
		m.unitsRun.Inc()
		if err != nil {
			m.unitFailures.Inc()
		}
	}
}
