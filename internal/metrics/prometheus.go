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
			Name:    "assistant_query_duration_seconds",
			Help:    "Full pipeline duration per question in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_query_total",
			Help: "Total questions processed",
		},
		[]string{"status"},
	)

	QueriesBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_queries_blocked_total",
			Help: "Questions or responses refused by the guardrails",
		},
		[]string{"gate"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_retrieval_results_count",
			Help:    "Candidate chunks returned by the vector store per question",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	RerankSurvivorsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_rerank_survivors_count",
			Help:    "Chunks surviving the relevance threshold per question",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_sessions_total",
			Help: "Number of persisted sessions",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(QueriesBlocked)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(RerankSurvivorsCount)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(SessionsActive)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
