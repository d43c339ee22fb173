// Package pipeline moves claimed jobs from the store through generation to a
// final status: dispatcher, bounded queue, worker pool, result writer and the
// stuck-job reaper.
package pipeline

import (
	"context"

	"multiverse/internal/domain"
)

// Queue is the bounded hand-off between the dispatcher and the workers. The
// dispatcher is its only producer, so Free is a safe claim limit.
type Queue struct {
	jobs chan domain.JobDetail
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{jobs: make(chan domain.JobDetail, capacity)}
}

func (q *Queue) Cap() int { return cap(q.jobs) }

func (q *Queue) Len() int { return len(q.jobs) }

// Free is the number of jobs that can be pushed without blocking.
func (q *Queue) Free() int { return cap(q.jobs) - len(q.jobs) }

// Push blocks until the job is queued or ctx is done.
func (q *Queue) Push(ctx context.Context, job domain.JobDetail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs is the receive side for workers.
func (q *Queue) Jobs() <-chan domain.JobDetail { return q.jobs }

// Drain empties the queue without blocking and returns what it removed.
func (q *Queue) Drain() []domain.JobDetail {
	var out []domain.JobDetail
	for {
		select {
		case job := <-q.jobs:
			out = append(out, job)
		default:
			return out
		}
	}
}
