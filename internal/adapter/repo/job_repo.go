package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"multiverse/internal/domain"
	"multiverse/internal/infra"
	"multiverse/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// ClaimBatch runs the claim statement. A non-positive limit claims nothing.
func (r *JobRepositoryPG) ClaimBatch(ctx context.Context, limit int) ([]domain.JobDetail, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QWorkerClaimJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobDetail
	for rows.Next() {
		var (
			d         domain.JobDetail
			themeType string
		)
		if err := rows.Scan(
			&d.ID,
			&d.BatchID,
			&d.ResultImageID,
			&d.UserID,
			&d.UserText,
			&d.Attempts,
			&d.ThemeID,
			&d.ThemeFound,
			&d.ThemeName,
			&d.ThemeGuidance,
			&themeType,
			&d.ThemeMetadata,
			&d.SourceImageID,
			&d.SourceFound,
			&d.SourceData,
			&d.SourceMIME,
		); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		d.ThemeType = domain.ThemeType(themeType)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepositoryPG) MarkReady(ctx context.Context, resultImageID uuid.UUID, attempt int, engine string) error {
	return r.transition(ctx, sqlinline.QWorkerMarkReady, resultImageID, attempt, engine)
}

func (r *JobRepositoryPG) MarkRetry(ctx context.Context, resultImageID uuid.UUID, attempt int, reason string) error {
	return r.transition(ctx, sqlinline.QWorkerMarkRetry, resultImageID, attempt, reason)
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, resultImageID uuid.UUID, attempt int, reason string) error {
	return r.transition(ctx, sqlinline.QWorkerMarkFailed, resultImageID, attempt, reason)
}

// transition only touches in_progress rows still held by the given attempt;
// zero affected rows means the job was not ours to move.
func (r *JobRepositoryPG) transition(ctx context.Context, query string, resultImageID uuid.UUID, attempt int, arg string) error {
	tag, err := r.sql.Exec(ctx, query, resultImageID, arg, attempt)
	if err != nil {
		return fmt.Errorf("update job %s: %w", resultImageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", resultImageID, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *JobRepositoryPG) ResetStuck(ctx context.Context, claimedBefore time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QWorkerResetStuck, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepositoryPG) GetByResultImageID(ctx context.Context, resultImageID uuid.UUID) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectJobByResultImage, resultImageID).Scan(
		&job.ID,
		&job.BatchID,
		&job.SourceImageID,
		&job.ThemeID,
		&job.ResultImageID,
		&job.UserID,
		&job.UserText,
		&status,
		&job.Engine,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
		&job.ClaimedAt,
		&job.FinishedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", resultImageID, err)
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

// Enqueue inserts a new job. Used by tooling; the public API owns job creation.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, job domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.BatchID,
		job.SourceImageID,
		job.ThemeID,
		job.ResultImageID,
		job.UserID,
		job.UserText,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// CountByStatus feeds the backlog gauge.
func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
