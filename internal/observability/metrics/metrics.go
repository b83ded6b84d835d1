// Package metrics defines the Prometheus collectors spec section 4.10
// requires (captures, retrievals, embedding requests, dedup events,
// failures, trigger fires, token consumption, durations, collection
// size gauges) and a fire-and-forget pusher so no hook ever blocks on
// the metrics path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var Registry = prometheus.NewRegistry()

var (
	Captures = registerCounter(prometheus.CounterOpts{
		Name: "memory_captures_total",
		Help: "Capture attempts by hook, status, project, collection.",
	}, []string{"hook", "status", "project", "collection"})

	Retrievals = registerCounter(prometheus.CounterOpts{
		Name: "memory_retrievals_total",
		Help: "Retrieval attempts by collection and status.",
	}, []string{"collection", "status"})

	EmbeddingRequests = registerCounter(prometheus.CounterOpts{
		Name: "memory_embedding_requests_total",
		Help: "Embedding requests by status.",
	}, []string{"status"})

	DedupEvents = registerCounter(prometheus.CounterOpts{
		Name: "memory_dedup_events_total",
		Help: "Dedup hits by project.",
	}, []string{"project"})

	Failures = registerCounter(prometheus.CounterOpts{
		Name: "memory_failures_total",
		Help: "Failures by component and error code.",
	}, []string{"component", "error_code"})

	TriggerFires = registerCounter(prometheus.CounterOpts{
		Name: "memory_trigger_fires_total",
		Help: "Trigger-engine detector fires by detector name.",
	}, []string{"detector"})

	Tokens = registerCounter(prometheus.CounterOpts{
		Name: "memory_tokens_total",
		Help: "Token counts by operation and direction.",
	}, []string{"operation", "direction"})

	HookDuration = registerHistogram(prometheus.HistogramOpts{
		Name:    "memory_hook_duration_seconds",
		Help:    "Hook handler wall time.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"hook"})

	EmbeddingDuration = registerHistogram(prometheus.HistogramOpts{
		Name:    "memory_embedding_duration_seconds",
		Help:    "Embedding request duration.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"model"})

	RetrievalDuration = registerHistogram(prometheus.HistogramOpts{
		Name:    "memory_retrieval_duration_seconds",
		Help:    "Retrieval call duration.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"collection"})

	CollectionSize = registerGauge(prometheus.GaugeOpts{
		Name: "memory_collection_size",
		Help: "Approximate point count per project and collection.",
	}, []string{"project", "collection"})

	QueueDepth = registerGauge(prometheus.GaugeOpts{
		Name: "memory_queue_depth",
		Help: "Pending entries per queue.",
	}, []string{"queue"})
)

func registerCounter(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	Registry.MustRegister(c)
	return c
}

func registerHistogram(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	Registry.MustRegister(h)
	return h
}

func registerGauge(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	Registry.MustRegister(g)
	return g
}

// ValidateTokenCount rejects zero/negative counts per spec section
// 4.10's "token-push validation rejects zero/negative counts."
func ValidateTokenCount(n int) bool {
	return n > 0
}
