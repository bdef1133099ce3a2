// Package telemetry exposes Prometheus metrics for the assistant's pipelines.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	completions  *prometheus.CounterVec
	embeddings   *prometheus.CounterVec
	retrievals   *prometheus.CounterVec
	chatTurns    *prometheus.CounterVec
	minutesRuns  *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "completion_calls_total",
			Help:      "Completion collaborator calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		embeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "embedding_calls_total",
			Help:      "Embedding collaborator calls by outcome.",
		}, []string{"outcome"}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "retrievals_total",
			Help:      "Semantic retrievals by index and scope.",
		}, []string{"index", "scoped"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "chat_turns_total",
			Help:      "Chat turns by classified label.",
		}, []string{"label"}),
		minutesRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditor",
			Name:      "minutes_runs_total",
			Help:      "Minutes pipeline runs by final status.",
		}, []string{"status"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auditor",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage"}),
	}

	m.registry.MustRegister(
		m.completions,
		m.embeddings,
		m.retrievals,
		m.chatTurns,
		m.minutesRuns,
		m.stageLatency,
		prometheus.NewGoCollector(),
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCompletion counts one completion call.
func (m *Metrics) ObserveCompletion(purpose string, err error) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(purpose, outcome(err)).Inc()
}

// ObserveEmbedding counts one embedding call.
func (m *Metrics) ObserveEmbedding(err error) {
	if m == nil {
		return
	}
	m.embeddings.WithLabelValues(outcome(err)).Inc()
}

// ObserveRetrieval counts one retrieval.
func (m *Metrics) ObserveRetrieval(index string, scoped bool) {
	if m == nil {
		return
	}
	s := "false"
	if scoped {
		s = "true"
	}
	m.retrievals.WithLabelValues(index, s).Inc()
}

// ObserveChatTurn counts one chat turn.
func (m *Metrics) ObserveChatTurn(label string) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(label).Inc()
}

// ObserveMinutesRun counts one minutes pipeline run.
func (m *Metrics) ObserveMinutesRun(status string) {
	if m == nil {
		return
	}
	m.minutesRuns.WithLabelValues(status).Inc()
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Registry returns the underlying registry, or nil for a nil *Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
