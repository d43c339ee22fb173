// Command enqueue inserts a source image and one or more jobs for a theme,
// the way the public API would, and optionally waits for them to finish.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multiverse/internal/adapter/repo"
	"multiverse/internal/domain"
	"multiverse/internal/infra"
	"multiverse/internal/providers/fetch"
)

type options struct {
	imagePath string
	themeID   string
	themeName string
	guidance  string
	userID    string
	userText  string
	count     int
	wait      time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.imagePath, "image", "", "path to the source image (required)")
	flag.StringVar(&opts.themeID, "theme", "", "existing theme id")
	flag.StringVar(&opts.themeName, "theme-name", "", "create a theme with this name when -theme is not set")
	flag.StringVar(&opts.guidance, "guidance", "", "guidance text for a created theme")
	flag.StringVar(&opts.userID, "user", "local-dev", "owning user id")
	flag.StringVar(&opts.userText, "text", "", "optional user instruction")
	flag.IntVar(&opts.count, "count", 1, "jobs to create in the batch")
	flag.DurationVar(&opts.wait, "wait", 0, "poll until every job is ready or failed, up to this long")
	flag.Parse()

	if strings.TrimSpace(opts.imagePath) == "" {
		fmt.Fprintln(os.Stderr, "-image is required")
		os.Exit(2)
	}
	if opts.themeID == "" && opts.themeName == "" {
		fmt.Fprintln(os.Stderr, "one of -theme or -theme-name is required")
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "enqueue").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("enqueue: db connection failed")
	}
	defer pool.Close()

	if err := run(ctx, infra.NewSQLRunner(pool, logger), opts, logger); err != nil {
		logger.Error().Err(err).Msg("enqueue: failed")
		pool.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, sql infra.SQLExecutor, opts options, logger zerolog.Logger) error {
	themes := repo.NewThemeRepository(sql)
	images := repo.NewImageRepository(sql)
	jobs := repo.NewJobRepository(sql)

	theme, err := resolveTheme(ctx, themes, opts)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	source := domain.Image{
		ID:       uuid.New(),
		UserID:   opts.userID,
		Data:     data,
		MIMEType: fetch.SniffMIME(data, ""),
		Metadata: map[string]any{"origin": "enqueue"},
	}
	if err := images.Upsert(ctx, source); err != nil {
		return err
	}

	batch := uuid.New()
	var results []uuid.UUID
	for i := 0; i < max(opts.count, 1); i++ {
		job := domain.Job{
			ID:            uuid.New(),
			BatchID:       batch,
			SourceImageID: source.ID,
			ThemeID:       theme.ID,
			ResultImageID: uuid.New(),
			UserID:        opts.userID,
			UserText:      opts.userText,
		}
		if err := jobs.Enqueue(ctx, job); err != nil {
			return err
		}
		results = append(results, job.ResultImageID)
		logger.Info().
			Str("job_id", job.ID.String()).
			Str("result_image_id", job.ResultImageID.String()).
			Str("theme", theme.Name).
			Msg("enqueue: job created")
	}
	logger.Info().Str("batch_id", batch.String()).Int("jobs", len(results)).Msg("enqueue: batch created")

	if opts.wait <= 0 {
		return nil
	}
	return waitFor(ctx, jobs, results, opts.wait, logger)
}

func resolveTheme(ctx context.Context, themes *repo.ThemeRepositoryPG, opts options) (*domain.Theme, error) {
	if opts.themeID != "" {
		id, err := uuid.Parse(opts.themeID)
		if err != nil {
			return nil, fmt.Errorf("theme id: %w", err)
		}
		return themes.Get(ctx, id)
	}
	theme := domain.Theme{
		ID:           uuid.New(),
		Name:         opts.themeName,
		GuidanceText: opts.guidance,
		Type:         domain.ThemeTypeArt,
	}
	if err := themes.Upsert(ctx, theme); err != nil {
		return nil, err
	}
	return &theme, nil
}

func waitFor(ctx context.Context, jobs domain.JobStore, results []uuid.UUID, limit time.Duration, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	pending := make(map[uuid.UUID]bool, len(results))
	for _, id := range results {
		pending[id] = true
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d job(s) still pending: %w", len(pending), ctx.Err())
		case <-ticker.C:
		}
		for id := range pending {
			job, err := jobs.GetByResultImageID(ctx, id)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					break
				}
				return err
			}
			if !job.Status.Terminal() {
				continue
			}
			delete(pending, id)
			ev := logger.Info()
			if job.Status == domain.JobStatusFailed {
				ev = logger.Warn().Str("last_error", job.LastError)
			}
			ev.Str("result_image_id", id.String()).
				Str("status", string(job.Status)).
				Str("engine", job.Engine).
				Int("attempts", job.Attempts).
				Msg("enqueue: job finished")
		}
	}
	return nil
}
