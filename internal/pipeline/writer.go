package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"multiverse/internal/domain"
	"multiverse/internal/imagegen"
	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
	"multiverse/internal/storage"
)

// maxErrorText bounds what lands in jobs.last_error.
const maxErrorText = 2000

// Writer owns every status change a worker makes.
type Writer struct {
	jobs        domain.JobStore
	images      domain.ImageStore
	archive     storage.Archive
	maxAttempts int
	logger      zerolog.Logger
}

type WriterConfig struct {
	Jobs    domain.JobStore
	Images  domain.ImageStore
	Archive storage.Archive
	// MaxAttempts is the claim count after which a failing job is failed
	// rather than retried. Zero means retry forever.
	MaxAttempts int
	Logger      zerolog.Logger
}

func NewWriter(cfg WriterConfig) *Writer {
	return &Writer{
		jobs:        cfg.Jobs,
		images:      cfg.Images,
		archive:     cfg.Archive,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger.With().Str("component", "writer").Logger(),
	}
}

// Success upserts the result blob, mirrors it to the archive and marks the job
// ready. The status update runs last so a crash before it leaves a retryable
// job, never a ready job without a blob. A worker whose claim was reset and
// taken over writes nothing.
func (w *Writer) Success(ctx context.Context, job domain.JobDetail, res imagegen.Result) error {
	if err := w.ownsClaim(ctx, job); err != nil {
		return err
	}
	mime := fetch.SniffMIME(res.Image.Data, res.Image.MIME)
	img := domain.Image{
		ID:       job.ResultImageID,
		UserID:   job.UserID,
		Data:     res.Image.Data,
		MIMEType: mime,
		Metadata: map[string]any{
			"theme_id":       job.ThemeID.String(),
			"process_method": res.Method,
			"engine":         res.Engine,
		},
	}
	if err := w.images.Upsert(ctx, img); err != nil {
		return fmt.Errorf("store result image: %w", err)
	}
	if w.archive != nil {
		key := storage.ResultKey(job.BatchID, job.ResultImageID, mime)
		if _, err := w.archive.Put(ctx, key, img.Data, mime); err != nil {
			w.logger.Warn().Err(err).Str("archive", w.archive.Name()).Str("key", key).Msg("writer: archive mirror failed")
		}
	}
	if err := w.jobs.MarkReady(ctx, job.ResultImageID, job.Attempts, res.Engine); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

// Failure moves the job to retry, or to failed when the cause is permanent or
// the attempt budget is spent. It returns the status written.
func (w *Writer) Failure(ctx context.Context, job domain.JobDetail, cause error) domain.JobStatus {
	status := domain.JobStatusRetry
	if domain.IsPermanent(cause) || (w.maxAttempts > 0 && job.Attempts >= w.maxAttempts) {
		status = domain.JobStatusFailed
	}
	reason := errorText(cause)

	var err error
	if status == domain.JobStatusFailed {
		err = w.jobs.MarkFailed(ctx, job.ResultImageID, job.Attempts, reason)
	} else {
		err = w.jobs.MarkRetry(ctx, job.ResultImageID, job.Attempts, reason)
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		w.logger.Warn().
			Str("job_id", job.ID.String()).
			Int("attempt", job.Attempts).
			Msg("writer: claim lost, leaving job to its current owner")
		return domain.JobStatusInProgress
	}
	if err != nil {
		// The reaper picks up whatever is left in_progress.
		w.logger.Error().Err(err).
			Str("job_id", job.ID.String()).
			Str("status", string(status)).
			Msg("writer: status update failed")
		return domain.JobStatusInProgress
	}
	return status
}

// Release hands claimed jobs back as retry without running them.
func (w *Writer) Release(ctx context.Context, jobs []domain.JobDetail) {
	for _, job := range jobs {
		err := w.jobs.MarkRetry(ctx, job.ResultImageID, job.Attempts, "released before processing")
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			w.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("writer: release failed")
			continue
		}
		w.logger.Info().Str("job_id", job.ID.String()).Msg("writer: released job")
	}
}

// ownsClaim checks the row is still in_progress under this attempt.
func (w *Writer) ownsClaim(ctx context.Context, job domain.JobDetail) error {
	cur, err := w.jobs.GetByResultImageID(ctx, job.ResultImageID)
	if err != nil {
		return fmt.Errorf("check claim: %w", err)
	}
	if cur.Status != domain.JobStatusInProgress || cur.Attempts != job.Attempts {
		return fmt.Errorf("job %s attempt %d: %w", job.ID, job.Attempts, domain.ErrInvalidTransition)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return providers.Truncate(err.Error(), maxErrorText)
}
