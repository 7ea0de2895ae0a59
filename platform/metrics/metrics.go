// Package metrics holds the prometheus collectors shared by the api and scheduler binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	ScanItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_scan_items_total",
			Help: "Inbox messages handled per scan stream and outcome",
		},
		[]string{"stream", "outcome"},
	)

	LeadsCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_leads_captured_total",
			Help: "Leads upserted from capture events",
		},
		[]string{"program"},
	)

	RepliesClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_replies_classified_total",
			Help: "Replies stored per classification category",
		},
		[]string{"category"},
	)
)

// Dispatch metrics
var (
	StepsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_steps_dispatched_total",
			Help: "Sequence steps dispatched per outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nurture_job_duration_seconds",
			Help:    "Wall time of background job runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	JobSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_job_skipped_total",
			Help: "Job runs skipped because a previous run still held the guard",
		},
		[]string{"job"},
	)
)
