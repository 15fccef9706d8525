// Package metrics declares the Prometheus metrics of the scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemykey_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratemykey_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"route"},
	)

	// Cache metrics
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemykey_cache_reads_total",
			Help: "Cache reads by outcome",
		},
		[]string{"cache", "outcome"}, // outcome: hit/miss/stale/poisoned
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemykey_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"cache"},
	)

	CachePurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemykey_cache_purged_total",
			Help: "Cache entries removed by the writer fencing step",
		},
		[]string{"cache"},
	)

	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratemykey_recompute_duration_seconds",
			Help:    "Time spent rebuilding a context-wide table",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"cache", "mode"}, // mode: full/incremental
	)

	// Scoring metrics
	ActionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemykey_actions_recorded_total",
			Help: "Total number of actions appended to the ledger",
		},
	)

	OutliersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemykey_outliers_total",
			Help: "Total number of ratings classified as outliers",
		},
	)

	ContractViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemykey_contract_violations_total",
			Help: "Ratings degraded because the key was missing from the score table",
		},
	)

	PruneFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemykey_prune_failures_total",
			Help: "Background ledger prunes that failed",
		},
	)

	PrunedActors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemykey_pruned_actors_total",
			Help: "Ledger records removed for falling outside the window",
		},
	)
)
