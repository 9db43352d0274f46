// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

	CampaignRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_campaign_runs_total",
			Help: "Campaign runs by channel and final status",
		},
		[]string{"channel", "status"},
	)

	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_sends_total",
			Help: "Send attempts by channel and result",
		},
		[]string{"channel", "result"},
	)

	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_send_errors_total",
			Help: "Failed sends by channel and error kind",
		},
		[]string{"channel", "error_kind"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_send_duration_seconds",
			Help:    "Adapter send latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	Skips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_skips_total",
			Help: "Targets skipped before submission, by reason",
		},
		[]string{"channel", "reason"},
	)

	UnresolvedTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_unresolved_tokens_total",
			Help: "Rendered messages that still contained {{placeholders}}",
		},
		[]string{"channel"},
	)

	AuditFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_audit_failures_total",
			Help: "Audit entries dropped after all attempts failed",
		},
		[]string{"sink"},
	)

	SchedulerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outreach_scheduler_queue_depth",
			Help: "Tasks waiting for admission",
		},
		[]string{"scheduler"},
	)

	SchedulerInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outreach_scheduler_in_flight",
			Help: "Tasks currently executing",
		},
		[]string{"scheduler"},
	)
)
