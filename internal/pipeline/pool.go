package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Pool runs a fixed number of workers over the queue.
type Pool struct {
	queue     *Queue
	processor *Processor
	workers   int
	logger    zerolog.Logger
}

func NewPool(queue *Queue, processor *Processor, workers int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		workers:   workers,
		logger:    logger.With().Str("component", "pool").Logger(),
	}
}

// Run blocks until ctx is done and every worker has finished its current job.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().Int("workers", p.workers).Msg("pool: started")
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
	p.logger.Info().Msg("pool: stopped")
	return nil
}

// work checks for stop only between jobs. A job in flight runs on a context
// detached from ctx so shutdown never abandons it half written; the processor
// still bounds it by the claim deadline.
func (p *Pool) work(ctx context.Context, id int) {
	jobCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue.Jobs():
			if !ok {
				return
			}
			status := p.processor.Process(jobCtx, job)
			p.logger.Debug().Int("worker", id).Str("job_id", job.ID.String()).Str("status", string(status)).Msg("pool: job done")
		}
	}
}
