// Package metrics holds the prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_http_requests_total",
		Help: "HTTP requests served, by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "screener_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// IndexerRuns counts dataset convergence attempts by outcome.
	IndexerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_indexer_runs_total",
		Help: "Dataset reindex attempts, by dataset and outcome.",
	}, []string{"dataset", "outcome"})

	// IndexedOps counts entity operations written during ingestion.
	IndexedOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_indexed_ops_total",
		Help: "Entity operations applied during ingestion, by dataset.",
	}, []string{"dataset"})

	// MatchQueries counts scored match queries by algorithm.
	MatchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screener_match_queries_total",
		Help: "Match queries scored, by algorithm.",
	}, []string{"algorithm"})
)
