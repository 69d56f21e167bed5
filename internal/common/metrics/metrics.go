// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AllocationOffers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_offers_total",
			Help: "Total number of case offers dispatched, by wave outcome",
		},
		[]string{"decision"},
	)

	AllocationWaves = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocation_waves_per_case",
			Help:    "Number of waves a case went through before settling",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"outcome"},
	)

	AllocationExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_exhausted_total",
			Help: "Cases that ran out of waves and require manual assignment",
		},
	)

	CapacityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_consume_failures_total",
			Help: "ConsumeCapacity calls rejected because capacity was exhausted",
		},
	)

	StaleDecisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_stale_decisions_total",
			Help: "Decisions discarded because the wave latch was already set",
		},
	)

	NudgesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_nudges_sent_total",
			Help: "Reminder notifications triggered mid-wave",
		},
	)

	PendingAllocationBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocation_pending_backlog",
			Help: "Cases parked in pending_allocation at the last snapshot",
		},
	)

	CandidateCapacityAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "candidate_capacity_available",
			Help: "Remaining daily capacity per candidate at the last snapshot",
		},
		[]string{"candidate_id"},
	)

	QCReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_reviews_total",
			Help: "QC review verdicts recorded",
		},
		[]string{"result"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)
