package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_query_duration_seconds",
			Help:    "Question answering duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_query_total",
			Help: "Total questions processed",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_similarity_cache_hits_total",
			Help: "Questions answered from the similarity cache",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_similarity_cache_misses_total",
			Help: "Questions that required fresh generation",
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	FragmentsRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_fragments_retrieved",
			Help:    "Fragments returned per vector search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	EmbeddingTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_embedding_truncations_total",
			Help: "Texts truncated before embedding",
		},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_embedding_failures_total",
			Help: "Embedding calls that exhausted their retry budget",
		},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_documents_ingested_total",
			Help: "Documents whose fragments were ingested",
		},
	)

	FragmentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_fragments_ingested_total",
			Help: "Fragments embedded and stored",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(FragmentsRetrieved)
	prometheus.MustRegister(EmbeddingTruncations)
	prometheus.MustRegister(EmbeddingFailures)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(FragmentsIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
