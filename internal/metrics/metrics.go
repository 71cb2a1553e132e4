package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. One instance is shared
// across the pipeline and handlers.
type Metrics struct {
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	UsersScored      prometheus.Counter
	UserScoreErrors  prometheus.Counter
	ScoringDuration  prometheus.Histogram
	RerankOutcomes   *prometheus.CounterVec
	SinkWrites       *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinerec_training_runs_total",
			Help: "Training runs by result.",
		}, []string{"result"}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinerec_training_duration_seconds",
			Help:    "Wall time of a full training run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		UsersScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinerec_users_scored_total",
			Help: "Users whose recommendations were written to the sink.",
		}),
		UserScoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "cinerec_user_score_errors_total",
			Help: "Per-user scoring failures that were skipped, not fatal.",
		}),
		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinerec_user_scoring_duration_seconds",
			Help:    "Per-user recommend/fuse/rerank latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		RerankOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinerec_rerank_outcomes_total",
			Help: "Re-rank calls by outcome (reranked, skipped, fallback).",
		}, []string{"outcome"}),
		SinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cinerec_sink_writes_total",
			Help: "Result sink writes by result.",
		}, []string{"result"}),
	}
}
