package metrics

import "github.com/prometheus/client_golang/prometheus"

// Strategy labels for retrieval metrics.
const (
	StrategyVector  = "vector"
	StrategyLexical = "lexical"
)

// Retrieval Prometheus metrics.
var (
	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "retrievals_total",
			Help:      "Total number of retrieval calls by winning strategy",
		},
		[]string{"strategy", "status"},
	)

	RetrievalFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "retrieval_fallbacks_total",
			Help:      "Vector-path failures absorbed into lexical fallback",
		},
		[]string{"reason"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quarry",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	PipelineStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quarry",
			Name:      "pipeline_steps_total",
			Help:      "Pipeline steps executed by kind and outcome",
		},
		[]string{"kind", "status"},
	)
)

// RegisterRetrievalMetrics registers retrieval metrics with the default
// registry. Called once from the composition root (no init()).
func RegisterRetrievalMetrics() {
	prometheus.MustRegister(RetrievalsTotal)
	prometheus.MustRegister(RetrievalFallbacksTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(PipelineStepsTotal)
}
