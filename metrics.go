package svcrun

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional prometheus instrumentation for the runtime.
// A nil *Metrics is valid and records nothing, so instrumented code paths
// never need to branch.
type Metrics struct {
	runnerStarts    *prometheus.CounterVec
	relaySends      *prometheus.CounterVec
	persists        *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
}

// NewMetrics builds the runtime's collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runnerStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrun",
				Name:      "runner_starts_total",
				Help:      "Runner starts per service.",
			},
			[]string{"service"},
		),
		relaySends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrun",
				Name:      "relay_sends_total",
				Help:      "Messages accepted by relay producers per service.",
			},
			[]string{"service"},
		),
		persists: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrun",
				Name:      "state_persists_total",
				Help:      "State snapshots handed to the operator per service.",
			},
			[]string{"service"},
		),
		persistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcrun",
				Name:      "state_persist_failures_total",
				Help:      "State snapshots the operator failed to persist per service.",
			},
			[]string{"service"},
		),
	}
	reg.MustRegister(m.runnerStarts, m.relaySends, m.persists, m.persistFailures)
	return m
}

func (m *Metrics) recordRunnerStart(service string) {
	if m == nil {
		return
	}
	m.runnerStarts.WithLabelValues(service).Inc()
}

func (m *Metrics) recordRelaySend(service string) {
	if m == nil {
		return
	}
	m.relaySends.WithLabelValues(service).Inc()
}

func (m *Metrics) recordPersist(service string, err error) {
	if m == nil {
		return
	}
	m.persists.WithLabelValues(service).Inc()
	if err != nil {
		m.persistFailures.WithLabelValues(service).Inc()
	}
}
