// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesProcessed counts committed batches by outcome
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "code_reader_batches_processed_total",
		Help: "Indexing batches processed, by outcome.",
	}, []string{"outcome"})

	// ChunksEmbedded counts chunks sent through the embedder
	ChunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "code_reader_chunks_embedded_total",
		Help: "Chunks embedded and persisted.",
	})

	// EmbeddingRetries counts provider retry attempts
	EmbeddingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "code_reader_embedding_retries_total",
		Help: "Embedding provider calls retried after rate-limit or server errors.",
	})

	// SearchDuration observes end-to-end search latency by backend
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "code_reader_search_duration_seconds",
		Help:    "Search latency by retrieval backend.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	// QueueDepth tracks pending job actions
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "code_reader_queue_depth",
		Help: "Job actions waiting in the queue.",
	})
)
