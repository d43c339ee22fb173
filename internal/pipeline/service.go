package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"multiverse/internal/domain"
	"multiverse/internal/storage"
)

type Config struct {
	Jobs      domain.JobStore
	Images    domain.ImageStore
	Backlog   BacklogSource
	Archive   storage.Archive
	Generator Generator
	Metrics   *Metrics

	Workers       int
	QueueCapacity int
	PollInterval  time.Duration
	ErrorBackoff  time.Duration
	MaxAttempts   int
	// StuckJobAge is how long a claim may stay in_progress before the reaper
	// hands it out again. Generation is cut off at half of it.
	StuckJobAge time.Duration
	// BacklogInterval is how often the backlog gauge is refreshed. Zero
	// disables it.
	BacklogInterval time.Duration

	Logger zerolog.Logger
}

// Service wires the dispatcher, pool, reaper and backlog gauge together.
type Service struct {
	queue      *Queue
	writer     *Writer
	dispatcher *Dispatcher
	pool       *Pool
	reaper     *Reaper
	metrics    *Metrics
	backlog    BacklogSource
	backlogInt time.Duration
	logger     zerolog.Logger
}

func NewService(cfg Config) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 2 * workers
	}
	queue := NewQueue(capacity)
	writer := NewWriter(WriterConfig{
		Jobs:        cfg.Jobs,
		Images:      cfg.Images,
		Archive:     cfg.Archive,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      cfg.Logger,
	})
	return &Service{
		queue:  queue,
		writer: writer,
		dispatcher: NewDispatcher(DispatcherConfig{
			Jobs:         cfg.Jobs,
			Queue:        queue,
			Writer:       writer,
			PollInterval: cfg.PollInterval,
			ErrorBackoff: cfg.ErrorBackoff,
			Metrics:      cfg.Metrics,
			Logger:       cfg.Logger,
		}),
		pool:       NewPool(queue, NewProcessor(cfg.Generator, writer, cfg.Metrics, JobTimeout(cfg.StuckJobAge), cfg.Logger), workers, cfg.Logger),
		reaper:     NewReaper(cfg.Jobs, cfg.StuckJobAge, cfg.Metrics, cfg.Logger),
		metrics:    cfg.Metrics,
		backlog:    cfg.Backlog,
		backlogInt: cfg.BacklogInterval,
		logger:     cfg.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// JobTimeout is the generation budget for a claim that the reaper resets after
// stuckAge. Zero disables both.
func JobTimeout(stuckAge time.Duration) time.Duration {
	if stuckAge <= 0 {
		return 0
	}
	return stuckAge / 2
}

// Run blocks until ctx is done and in-flight jobs have finished. Jobs still
// queued at that point are released back to retry.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.pool.Run(gctx) })
	g.Go(func() error { return s.reaper.Run(gctx) })
	g.Go(func() error { return s.metrics.RunBacklog(gctx, s.backlog, s.backlogInt, s.logger) })
	err := g.Wait()

	if left := s.queue.Drain(); len(left) > 0 {
		s.logger.Info().Int("count", len(left)).Msg("pipeline: releasing queued jobs")
		s.writer.Release(context.WithoutCancel(ctx), left)
	}
	return err
}
