// Package metrics exposes Prometheus collectors for the manual finder service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheDecisionsTotal    *prometheus.CounterVec
	resolverOutcomesTotal  *prometheus.CounterVec
	downloadsTotal         *prometheus.CounterVec
	jobsTotal              *prometheus.CounterVec
	searchQueriesTotal     prometheus.Counter
	warrantyExtractedTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cacheDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manualfinder_cache_decisions_total",
				Help: "Cache gate decisions, labeled by decision kind.",
			},
			[]string{"decision"},
		)

		resolverOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manualfinder_resolver_outcomes_total",
				Help: "Per-resolver outcomes, labeled by source and result kind.",
			},
			[]string{"source", "kind"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manualfinder_downloads_total",
				Help: "Attempted document downloads, labeled by result (valid, invalid, error).",
			},
			[]string{"result"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manualfinder_jobs_total",
				Help: "Background jobs run, labeled by kind and terminal state.",
			},
			[]string{"kind", "state"},
		)

		searchQueriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "manualfinder_search_queries_total",
				Help: "Web search queries issued.",
			},
		)

		warrantyExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "manualfinder_warranty_extracted_total",
				Help: "Warranty phrases successfully extracted.",
			},
		)
	})
}

// ObserveCacheDecision records one cache gate decision.
func ObserveCacheDecision(decision string) {
	if cacheDecisionsTotal != nil {
		cacheDecisionsTotal.WithLabelValues(decision).Inc()
	}
}

// ObserveResolverOutcome records one resolver run.
func ObserveResolverOutcome(source, kind string) {
	if resolverOutcomesTotal != nil {
		resolverOutcomesTotal.WithLabelValues(source, kind).Inc()
	}
}

// ObserveDownload records one download attempt result.
func ObserveDownload(result string) {
	if downloadsTotal != nil {
		downloadsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveJob records a job reaching a terminal state.
func ObserveJob(kind, state string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(kind, state).Inc()
	}
}

// ObserveSearchQuery records one issued search query.
func ObserveSearchQuery() {
	if searchQueriesTotal != nil {
		searchQueriesTotal.Inc()
	}
}

// ObserveWarrantyExtracted records one successful warranty extraction.
func ObserveWarrantyExtracted() {
	if warrantyExtractedTotal != nil {
		warrantyExtractedTotal.Inc()
	}
}
