package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_ask_requests_total",
			Help: "Total number of ask requests by outcome.",
		},
		[]string{"mode", "outcome"},
	)
	generationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "text2sql_generation_attempts",
			Help:    "Generate and execute rounds needed per ask request.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)
	refinementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "text2sql_refinements_total",
			Help: "Total number of refinement passes triggered by execution errors.",
		},
	)
	refinementExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "text2sql_refinement_exhausted_total",
			Help: "Total number of ask requests that ran out of refinement attempts.",
		},
	)
	indexBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_index_builds_total",
			Help: "Vector index materializations by source (embedded, snapshot).",
		},
		[]string{"source"},
	)
	indexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "text2sql_index_documents",
			Help: "Number of schema documents in the active vector index.",
		},
	)
	retrievalLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "text2sql_retrieval_latency_ms",
			Help:    "Embedding plus similarity search latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "text2sql_query_latency_ms",
			Help:    "Target database execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	schemaLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "text2sql_schema_loads_total",
			Help: "Schema catalog loads by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		generationAttempts,
		refinementsTotal,
		refinementExhaustedTotal,
		indexBuildsTotal,
		indexDocuments,
		retrievalLatencyMs,
		queryLatencyMs,
		schemaLoadsTotal,
	)
}

func ObserveAsk(mode, outcome string, rounds int) {
	askRequestsTotal.WithLabelValues(mode, outcome).Inc()
	if rounds > 0 {
		generationAttempts.Observe(float64(rounds))
	}
}

func IncrementRefinement() {
	refinementsTotal.Inc()
}

func IncrementRefinementExhausted() {
	refinementExhaustedTotal.Inc()
}

func ObserveIndexBuild(source string, documents int) {
	indexBuildsTotal.WithLabelValues(source).Inc()
	if documents < 0 {
		documents = 0
	}
	indexDocuments.Set(float64(documents))
}

func ObserveRetrieval(elapsed time.Duration) {
	retrievalLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveQuery(elapsed time.Duration) {
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveSchemaLoad(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	schemaLoadsTotal.WithLabelValues(result).Inc()
}
