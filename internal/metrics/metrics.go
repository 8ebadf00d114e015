package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelOp     = "op"
	LabelResult = "result"
	LabelCache  = "cache"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultCapacity = "capacity"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultHit      = "hit"
	ResultMiss     = "miss"
)

// Ledger metrics
var (
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardledger_ledger_operations_total",
			Help: "Ledger operations by operation and result",
		},
		[]string{LabelOp, LabelResult},
	)

	LedgerLoadSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardledger_ledger_load_skipped_total",
			Help: "Stored rows left out of a ledger on load because their card did not resolve",
		},
		[]string{LabelResult},
	)

	LedgerSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardledger_ledger_sessions",
			Help: "Collector ledgers currently held in memory",
		},
	)
)

// Catalog metrics
var (
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardledger_catalog_requests_total",
			Help: "Remote catalog requests by operation and result",
		},
		[]string{LabelOp, LabelResult},
	)

	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardledger_catalog_request_duration_seconds",
			Help:    "Remote catalog request latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOp},
	)

	CatalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardledger_catalog_cache_lookups_total",
			Help: "Card lookup cache hits and misses by backend",
		},
		[]string{LabelCache, LabelResult},
	)
)

// Image metrics
var (
	ImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardledger_image_fetches_total",
			Help: "Background card image downloads by result",
		},
		[]string{LabelResult},
	)

	ImageQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardledger_image_queue_dropped_total",
			Help: "Image prefetch requests dropped because the queue was full",
		},
	)
)
