package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/domain"
)

// Reaper returns jobs stranded in in_progress, e.g. by a crashed process, to
// retry once their claim is older than the configured age.
type Reaper struct {
	jobs     domain.JobStore
	age      time.Duration
	interval time.Duration
	now      func() time.Time
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewReaper checks every age/2, at most once a minute.
func NewReaper(jobs domain.JobStore, age time.Duration, metrics *Metrics, logger zerolog.Logger) *Reaper {
	interval := age / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	return &Reaper{
		jobs:     jobs,
		age:      age,
		interval: interval,
		now:      time.Now,
		metrics:  metrics,
		logger:   logger.With().Str("component", "reaper").Logger(),
	}
}

// Run is a no-op when age is zero.
func (r *Reaper) Run(ctx context.Context) error {
	if r.age <= 0 || r.interval <= 0 {
		r.logger.Info().Msg("reaper: disabled")
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reset pass and returns how many jobs it moved.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.age)
	n, err := r.jobs.ResetStuck(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("reaper: reset failed")
		}
		return 0
	}
	if n > 0 {
		r.metrics.reset(n)
		r.logger.Warn().Int64("count", n).Time("claimed_before", cutoff).Msg("reaper: returned stuck jobs to retry")
	}
	return n
}
