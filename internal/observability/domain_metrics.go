package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimscope_generation_attempts_total",
			Help: "Total SQL generation attempts by outcome (accepted, rejected, failed).",
		},
		[]string{"outcome"},
	)
	safetyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claimscope_safety_rejections_total",
			Help: "Total validator rejections by reason code.",
		},
		[]string{"reason"},
	)
	retryExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimscope_retry_exhausted_total",
			Help: "Total requests that hit the generation attempt cap without an accepted statement.",
		},
	)
	generationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claimscope_generation_latency_seconds",
			Help:    "Latency of a single text generation round trip.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claimscope_query_duration_seconds",
			Help:    "Execution time of validated statements against the warehouse.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claimscope_query_rows_returned",
			Help:    "Row counts returned by executed statements.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		},
	)
	catalogRefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimscope_catalog_refresh_total",
			Help: "Total successful schema catalog builds.",
		},
	)
	catalogRefreshFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimscope_catalog_refresh_failures_total",
			Help: "Total failed schema catalog builds (stale epoch kept serving).",
		},
	)
	catalogStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "claimscope_catalog_stale",
			Help: "1 when the serving catalog epoch is older than its TTL because a refresh failed.",
		},
	)
	reportArtifactsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claimscope_report_artifacts_total",
			Help: "Total derived report artifacts archived to object storage.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationAttemptsTotal,
		safetyRejectionsTotal,
		retryExhaustedTotal,
		generationLatencySeconds,
		queryDurationSeconds,
		queryRowsReturned,
		catalogRefreshTotal,
		catalogRefreshFailuresTotal,
		catalogStale,
		reportArtifactsTotal,
	)
}

func ObserveGenerationAttempt(outcome string, elapsed time.Duration) {
	generationAttemptsTotal.WithLabelValues(outcome).Inc()
	generationLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveSafetyRejection(reason string) {
	safetyRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementRetryExhausted() {
	retryExhaustedTotal.Inc()
}

func ObserveQueryExecution(rows int, elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
	queryRowsReturned.Observe(float64(rows))
}

func ObserveCatalogRefresh(err error) {
	if err != nil {
		catalogRefreshFailuresTotal.Inc()
		return
	}
	catalogRefreshTotal.Inc()
}

func SetCatalogStale(stale bool) {
	if stale {
		catalogStale.Set(1)
		return
	}
	catalogStale.Set(0)
}

func IncrementReportArtifacts() {
	reportArtifactsTotal.Inc()
}
