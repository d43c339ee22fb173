package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"multiverse/internal/domain"
	"multiverse/internal/providers"
)

// Metrics is the worker's Prometheus surface. A nil *Metrics records nothing.
type Metrics struct {
	jobsClaimed      prometheus.Counter
	jobsFinished     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobsInFlight     prometheus.Gauge
	queueDepth       prometheus.Gauge
	dispatchErrors   prometheus.Counter
	stuckReset       prometheus.Counter
	backlog          *prometheus.GaugeVec
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobsClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "multiverse_jobs_claimed_total",
			Help: "Jobs moved to in_progress by the dispatcher",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "multiverse_jobs_finished_total",
			Help: "Jobs leaving in_progress, by resulting status",
		}, []string{"status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "multiverse_job_duration_seconds",
			Help:    "Wall time from dequeue to final status",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"status"}),
		jobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "multiverse_jobs_in_flight",
			Help: "Jobs currently held by a worker",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "multiverse_queue_depth",
			Help: "Claimed jobs waiting for a worker",
		}),
		dispatchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "multiverse_dispatch_errors_total",
			Help: "Failed claim attempts",
		}),
		stuckReset: f.NewCounter(prometheus.CounterOpts{
			Name: "multiverse_jobs_stuck_reset_total",
			Help: "in_progress jobs returned to retry by the reaper",
		}),
		backlog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multiverse_jobs",
			Help: "Jobs in the store by status",
		}, []string{"status"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "multiverse_provider_attempts_total",
			Help: "Provider calls by outcome; rate_limited includes skips with no call",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "multiverse_provider_latency_seconds",
			Help:    "Provider call latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),
	}
}

// ProviderAttempt implements imagegen.Observer.
func (m *Metrics) ProviderAttempt(provider string, reason providers.Reason, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := string(reason)
	if outcome == "" {
		outcome = "ok"
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	if elapsed > 0 {
		m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) claimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsClaimed.Add(float64(n))
}

func (m *Metrics) dispatchFailed() {
	if m != nil {
		m.dispatchErrors.Inc()
	}
}

func (m *Metrics) queued(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.jobsInFlight.Inc()
	}
}

func (m *Metrics) finished(status domain.JobStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsInFlight.Dec()
	m.jobsFinished.WithLabelValues(string(status)).Inc()
	m.jobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) reset(n int64) {
	if m != nil && n > 0 {
		m.stuckReset.Add(float64(n))
	}
}

// BacklogSource reports job counts by status.
type BacklogSource interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

var allStatuses = []domain.JobStatus{
	domain.JobStatusNew,
	domain.JobStatusInProgress,
	domain.JobStatusReady,
	domain.JobStatusRetry,
	domain.JobStatusFailed,
}

// RunBacklog refreshes the backlog gauge every interval until ctx is done.
func (m *Metrics) RunBacklog(ctx context.Context, src BacklogSource, interval time.Duration, logger zerolog.Logger) error {
	if m == nil || src == nil || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.refreshBacklog(ctx, src, logger)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Metrics) refreshBacklog(ctx context.Context, src BacklogSource, logger zerolog.Logger) {
	counts, err := src.CountByStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("metrics: count jobs failed")
		}
		return
	}
	for _, s := range allStatuses {
		m.backlog.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
