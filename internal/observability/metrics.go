package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the impacts service.
type Metrics struct {
	RulesLoaded   prometheus.Gauge
	RulebaseLoads *prometheus.CounterVec // labels: outcome={success,error}

	// Activation source metrics.
	ActivationFetches  *prometheus.CounterVec   // labels: source={upstream,snapshot}, outcome={success,error}
	ActivationCache    *prometheus.CounterVec   // labels: result={hit,miss}
	ActivationDuration prometheus.Histogram
	StaleActivations   prometheus.Counter

	// Aggregation metrics.
	AggregationDuration *prometheus.HistogramVec // labels: view={grouped,heatmap,matrix,detail}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RulesLoaded,
		m.RulebaseLoads,
		m.ActivationFetches,
		m.ActivationCache,
		m.ActivationDuration,
		m.StaleActivations,
		m.AggregationDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "impacts",
			Name:      "rules_loaded",
			Help:      "Number of rules in the active rulebase.",
		}),
		RulebaseLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impacts",
			Name:      "rulebase_loads_total",
			Help:      "Rulebase load attempts by outcome.",
		}, []string{"outcome"}),
		ActivationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impacts",
			Name:      "activation_fetches_total",
			Help:      "Rule activation reads by source and outcome.",
		}, []string{"source", "outcome"}),
		ActivationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "impacts",
			Name:      "activation_cache_total",
			Help:      "Activation cache lookups by result.",
		}, []string{"result"}),
		ActivationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "impacts",
			Name:      "activation_upstream_duration_seconds",
			Help:      "Rules service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		StaleActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "impacts",
			Name:      "stale_activations_total",
			Help:      "Activation responses discarded because a newer selection superseded them.",
		}),
		AggregationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "impacts",
			Name:      "aggregation_duration_seconds",
			Help:      "Time to compute an aggregate view.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"view"}),
	}
}
