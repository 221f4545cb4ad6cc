// Package metrics holds the Prometheus collectors of the ingest and
// retrieval paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chunksProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_chunks_produced_total",
			Help: "Chunks produced by the splitter, by document type",
		},
		[]string{"type"},
	)

	embedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_embed_batches_total",
			Help: "Embedding batches by status",
		},
		[]string{"status"},
	)

	upsertBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_upsert_batches_total",
			Help: "Vector store upsert batches by backend and status",
		},
		[]string{"backend", "status"},
	)

	retrievals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_retrievals_total",
			Help: "Retrieval calls by outcome: direct, fallback, empty or error",
		},
		[]string{"outcome"},
	)

	retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_retrieval_duration_seconds",
			Help:    "Duration of retrieval calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// ChunksProduced counts n chunks of a document type.
func ChunksProduced(docType string, n int) {
	chunksProduced.WithLabelValues(docType).Add(float64(n))
}

// EmbedBatch counts one embedding batch.
func EmbedBatch(ok bool) {
	embedBatches.WithLabelValues(status(ok)).Inc()
}

// UpsertBatch counts one upsert batch of backend.
func UpsertBatch(backend string, ok bool) {
	upsertBatches.WithLabelValues(backend, status(ok)).Inc()
}

// Retrieval records the outcome and duration of one retrieval call.
func Retrieval(outcome string, took time.Duration) {
	retrievals.WithLabelValues(outcome).Inc()
	retrievalDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
