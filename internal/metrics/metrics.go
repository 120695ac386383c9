// Package metrics exposes Prometheus counters for status evaluation and verification intake.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keystatus"

// Metrics groups the collectors of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluations   *prometheus.CounterVec
	fallbacks     prometheus.Counter
	verifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	evalDuration  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Status evaluations by primary status kind",
		}, []string{"primary"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Evaluations answered with the fallback because verification data was unavailable",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_recorded_total",
			Help:      "Recorded key verifications by outcome",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_cache_lookups_total",
			Help:      "Verification bucket cache lookups by result",
		}, []string{"result"}), // result: hit|miss
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_duration_seconds",
			Help:      "Time to fetch data and evaluate the status of one key",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.evaluations, m.fallbacks, m.verifications, m.cacheLookups, m.evalDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvaluation(primary string, seconds float64) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(primary).Inc()
	m.evalDuration.Observe(seconds)
}

func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
