// Package metrics holds the prometheus collectors of the ledger.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EntriesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkat_entries_recorded_total",
			Help: "Entries submitted to a batch, by target.",
		},
		[]string{"target"},
	)

	EntriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkat_entries_dropped_total",
			Help: "Events discarded before becoming entries, by reason.",
		},
		[]string{"reason"},
	)

	Flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkat_flushes_total",
			Help: "Batch flushes, by target and result.",
		},
		[]string{"target", "result"},
	)

	FlushedEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkat_flushed_entries_total",
			Help: "Entries written to the store.",
		},
	)

	PendingEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatkat_pending_entries",
			Help: "Entries waiting in the live batch.",
		},
	)

	Retractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkat_retractions_total",
			Help: "Deletion notices, by outcome.",
		},
		[]string{"outcome"},
	)

	BackfillRooms = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatkat_backfill_rooms",
			Help: "Known rooms by backfill state.",
		},
		[]string{"state"},
	)

	BackfillMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkat_backfill_messages_total",
			Help: "Historical messages imported.",
		},
	)

	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkat_queries_total",
			Help: "Ranking queries, by outcome.",
		},
		[]string{"outcome"},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatkat_query_duration_seconds",
			Help:    "Time to answer a ranking query.",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatkat_dispatch_queue_depth",
			Help: "Events waiting for a dispatch worker.",
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatkat_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		EntriesRecorded,
		EntriesDropped,
		Flushes,
		FlushedEntries,
		PendingEntries,
		Retractions,
		BackfillRooms,
		BackfillMessages,
		Queries,
		QueryDuration,
		DispatchQueueDepth,
		heapAlloc,
	)
}

const (
	ResultOK    = "ok"
	ResultError = "error"
)
