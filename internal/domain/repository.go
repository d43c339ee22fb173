package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStore owns job claiming and status transitions.
type JobStore interface {
	// ClaimBatch atomically moves up to limit new/retry jobs to in_progress
	// and returns them joined with their theme and source image.
	ClaimBatch(ctx context.Context, limit int) ([]JobDetail, error)
	// The Mark methods move an in_progress job claimed with the given attempt
	// number. A job reset and reclaimed since then returns
	// ErrInvalidTransition, so a stale worker can never finish it.
	MarkReady(ctx context.Context, resultImageID uuid.UUID, attempt int, engine string) error
	MarkRetry(ctx context.Context, resultImageID uuid.UUID, attempt int, reason string) error
	MarkFailed(ctx context.Context, resultImageID uuid.UUID, attempt int, reason string) error
	// ResetStuck returns in_progress jobs claimed before the cutoff to retry.
	ResetStuck(ctx context.Context, claimedBefore time.Time) (int64, error)
	GetByResultImageID(ctx context.Context, resultImageID uuid.UUID) (*Job, error)
}

// ImageStore persists image blobs.
type ImageStore interface {
	// Upsert writes the blob under img.ID, replacing any previous payload.
	Upsert(ctx context.Context, img Image) error
	Get(ctx context.Context, id uuid.UUID) (*Image, error)
}
