package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/domain"
	"multiverse/internal/imagegen"
	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

// Generator is the orchestrator as seen by a worker.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) (imagegen.Result, error)
}

// Processor runs one claimed job: validate, generate, persist, status.
type Processor struct {
	generator  Generator
	writer     *Writer
	metrics    *Metrics
	jobTimeout time.Duration
	logger     zerolog.Logger
}

// NewProcessor bounds generation to jobTimeout after the claim. Zero means no
// bound. Status writes are not covered by it.
func NewProcessor(generator Generator, writer *Writer, metrics *Metrics, jobTimeout time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		generator:  generator,
		writer:     writer,
		metrics:    metrics,
		jobTimeout: jobTimeout,
		logger:     logger.With().Str("component", "processor").Logger(),
	}
}

// generationContext derives the deadline from the claim time, so time spent
// queued counts against it.
func (p *Processor) generationContext(ctx context.Context, job domain.JobDetail, start time.Time) (context.Context, context.CancelFunc) {
	if p.jobTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	claimed := job.ClaimedAt
	if claimed.IsZero() {
		claimed = start
	}
	return context.WithDeadline(ctx, claimed.Add(p.jobTimeout))
}

// Process always leaves the job out of in_progress unless the final status
// update itself fails. Panics are recovered and treated as failures.
func (p *Processor) Process(ctx context.Context, job domain.JobDetail) (status domain.JobStatus) {
	start := time.Now()
	log := p.logger.With().
		Str("job_id", job.ID.String()).
		Str("batch_id", job.BatchID.String()).
		Str("result_image_id", job.ResultImageID.String()).
		Int("attempt", job.Attempts).
		Logger()
	p.metrics.started()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error().Err(err).Msg("processor: recovered panic")
			status = p.writer.Failure(ctx, job, err)
		}
		p.metrics.finished(status, time.Since(start))
	}()

	genCtx, cancel := p.generationContext(ctx, job, start)
	defer cancel()

	log.Info().Msg("processor: job started")
	res, err := p.run(ctx, genCtx, job)
	if err != nil {
		status = p.writer.Failure(ctx, job, err)
		log.Warn().Err(err).Str("status", string(status)).Msg("processor: job failed")
		return status
	}
	log.Info().
		Str("engine", res.Engine).
		Str("method", res.Method).
		Dur("elapsed", time.Since(start)).
		Msg("processor: job ready")
	return domain.JobStatusReady
}

func (p *Processor) run(ctx, genCtx context.Context, job domain.JobDetail) (imagegen.Result, error) {
	if !job.SourceFound || len(job.SourceData) == 0 {
		return imagegen.Result{}, fmt.Errorf("source image %s: %w", job.SourceImageID, domain.ErrMissingSource)
	}
	if !job.ThemeFound {
		return imagegen.Result{}, fmt.Errorf("theme %s: %w", job.ThemeID, domain.ErrMissingTheme)
	}
	req := imagegen.Request{
		Source: providers.Image{
			Data: job.SourceData,
			MIME: fetch.SniffMIME(job.SourceData, job.SourceMIME),
		},
		UserText: job.UserText,
		Theme:    domain.ThemeFromDetail(job),
	}
	res, err := p.generator.Generate(genCtx, req)
	if err != nil {
		return imagegen.Result{}, fmt.Errorf("generate: %w", err)
	}
	if err := genCtx.Err(); err != nil {
		// Past the deadline the claim may already be reset and reissued.
		return imagegen.Result{}, fmt.Errorf("generate: %w", err)
	}
	if err := p.writer.Success(ctx, job, res); err != nil {
		return imagegen.Result{}, err
	}
	return res, nil
}
