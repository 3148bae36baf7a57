// Package metrics holds the Prometheus collectors for the crawl pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlatformQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_signal",
		Name:      "platform_queries_total",
		Help:      "Upstream platform queries by outcome.",
	}, []string{"platform", "outcome"})

	PlatformQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patient_signal",
		Name:      "platform_query_duration_seconds",
		Help:      "Latency of upstream platform queries including retries.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"platform"})

	PlatformRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_signal",
		Name:      "platform_retries_total",
		Help:      "Retry attempts against upstream platforms.",
	}, []string{"platform"})

	CrawlJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_signal",
		Name:      "crawl_jobs_total",
		Help:      "Crawl jobs by terminal status.",
	}, []string{"status"})

	DailyScoresComputed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patient_signal",
		Name:      "daily_scores_computed_total",
		Help:      "Daily score recomputations that wrote a row.",
	})

	IndexFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_signal",
		Name:      "search_index_failures_total",
		Help:      "Failed attempts to push a result into a search index.",
	}, []string{"index"})
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeOpen    = "circuit_open"
)
