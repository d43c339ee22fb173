package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/domain"
)

// Dispatcher polls the store and claims at most as many jobs as the queue can
// take. A full queue skips the claim for that tick.
type Dispatcher struct {
	jobs         domain.JobStore
	queue        *Queue
	writer       *Writer
	pollInterval time.Duration
	errorBackoff time.Duration
	metrics      *Metrics
	logger       zerolog.Logger
}

type DispatcherConfig struct {
	Jobs         domain.JobStore
	Queue        *Queue
	Writer       *Writer
	PollInterval time.Duration
	ErrorBackoff time.Duration
	Metrics      *Metrics
	Logger       zerolog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	backoff := cfg.ErrorBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	return &Dispatcher{
		jobs:         cfg.Jobs,
		queue:        cfg.Queue,
		writer:       cfg.Writer,
		pollInterval: poll,
		errorBackoff: backoff,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run loops until ctx is done. Claim errors never end the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("queue_capacity", d.queue.Cap()).Dur("poll_interval", d.pollInterval).Msg("dispatcher: started")
	defer d.logger.Info().Msg("dispatcher: stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := d.DispatchOnce(ctx)
		wait := d.pollInterval
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			d.metrics.dispatchFailed()
			d.logger.Error().Err(err).Dur("backoff", d.errorBackoff).Msg("dispatcher: claim failed")
			wait = d.errorBackoff
		case n > 0 && d.queue.Free() > 0:
			wait = 0
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// DispatchOnce claims up to the queue's free capacity and queues the result.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	free := d.queue.Free()
	d.metrics.queued(d.queue.Len())
	if free == 0 {
		d.logger.Debug().Msg("dispatcher: queue full, skipping claim")
		return 0, nil
	}
	claimedAt := time.Now()
	claimed, err := d.jobs.ClaimBatch(ctx, free)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	for i := range claimed {
		claimed[i].ClaimedAt = claimedAt
	}
	d.metrics.claimed(len(claimed))
	d.logger.Info().Int("count", len(claimed)).Int("free", free).Msg("dispatcher: claimed jobs")
	for i, job := range claimed {
		if err := d.queue.Push(ctx, job); err != nil {
			// Stopped between claim and hand-off: give the rest back.
			d.writer.Release(context.WithoutCancel(ctx), claimed[i:])
			return i, nil
		}
	}
	d.metrics.queued(d.queue.Len())
	return len(claimed), nil
}

// sleep waits for d or ctx; false means ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
