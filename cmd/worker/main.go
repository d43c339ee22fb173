package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"multiverse/internal/adapter/repo"
	httpapi "multiverse/internal/http"
	"multiverse/internal/imagegen"
	"multiverse/internal/infra"
	"multiverse/internal/infra/credentials"
	"multiverse/internal/pipeline"
	"multiverse/internal/storage"
)

const backlogInterval = 15 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func run(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) error {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connection: %w", err)
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	limits, err := newLimiters(cfg, rdb, logger)
	if err != nil {
		return fmt.Errorf("rate limits: %w", err)
	}

	archive, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.ArchiveBackend,
		StoragePath: cfg.StoragePath,
		MinIO: storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(reg)

	creds := credentials.NewStore(runner)
	orchestrator := imagegen.NewOrchestrator(buildChain(cfg, creds, limits, metrics, logger))

	jobs := repo.NewJobRepository(runner)
	svc := pipeline.NewService(pipeline.Config{
		Jobs:            jobs,
		Images:          repo.NewImageRepository(runner),
		Backlog:         jobs,
		Archive:         archive,
		Generator:       orchestrator,
		Metrics:         metrics,
		Workers:         cfg.WorkerCount,
		QueueCapacity:   cfg.QueueCapacity,
		PollInterval:    cfg.PollInterval,
		ErrorBackoff:    cfg.ErrorBackoff,
		MaxAttempts:     cfg.MaxAttempts,
		StuckJobAge:     cfg.StuckJobAge,
		BacklogInterval: backlogInterval,
		Logger:          logger,
	})

	ops := infra.NewOpsServer(cfg.OpsPort, httpapi.NewOpsRouter(httpapi.OpsDeps{
		DB:       runner,
		Gatherer: reg,
		Logger:   infra.Component(logger, "ops"),
	}))

	logger.Info().
		Int("workers", cfg.WorkerCount).
		Int("queue_capacity", cfg.QueueCapacity).
		Int("max_attempts", cfg.MaxAttempts).
		Str("ops_addr", ops.Addr()).
		Bool("shared_limits", rdb != nil).
		Msg("worker: started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return ops.Run(gctx) })
	return g.Wait()
}

// openRedis returns nil when no URL is configured; limiters then stay
// in-process.
func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
