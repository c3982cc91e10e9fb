// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

// Package metrics defines Prometheus instrumentation for the aggregation
// pipeline and the HTTP API, exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetch layer

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total upstream fetch attempts",
		},
		[]string{"source", "outcome"}, // outcome: success, transient, fatal
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Total fetch retries after transient failures",
		},
		[]string{"source"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Upstream fetch duration including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetch_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	// Pipeline

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total pipeline runs",
		},
		[]string{"outcome"}, // outcome: ok, partial, timed_out
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Full pipeline run duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ListingsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_listings_fetched_total",
			Help: "Raw listings produced by connectors",
		},
		[]string{"source"},
	)

	ListingsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_listings_skipped_total",
			Help: "Listings discarded before normalization",
		},
		[]string{"source", "reason"}, // reason: geo_filtered, invalid
	)

	EventsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_events_written_total",
			Help: "Canonical events upserted",
		},
	)

	DuplicateGroupsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_duplicate_groups_total",
			Help: "Cross-source duplicate groups resolved",
		},
	)

	// Cache

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_invalidations_total",
			Help: "Catalog cache invalidation signals processed",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Catalog response cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Catalog response cache misses",
		},
	)

	// HTTP API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	TriggerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trigger_rejections_total",
			Help: "Rejected pipeline trigger requests",
		},
		[]string{"reason"}, // reason: auth, rate_limited, busy
	)
)
