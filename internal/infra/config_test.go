package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("QUEUE_CAPACITY", "")
	t.Setenv("ARCHIVE_BACKEND", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.WorkerCount)
	assert.Equal(t, 20, cfg.QueueCapacity)
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.StuckJobAge)
	assert.Equal(t, "none", cfg.ArchiveBackend)
	assert.Equal(t, "5/1m", cfg.OpenAI.RateLimit)
	assert.Equal(t, "5/1m", cfg.OpenAIImage1RateLimit)
	assert.Zero(t, cfg.PrimaryMaxWait)
	assert.Equal(t, "500/1m", cfg.ModelsLab.RateLimit)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadConfigQueueCapacityFollowsWorkers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("QUEUE_CAPACITY", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.QueueCapacity)
}

func TestLoadConfigDurations(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("ERROR_BACKOFF", "5")
	t.Setenv("STUCK_JOB_AGE", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, time.Duration(0), cfg.StuckJobAge)
}

func TestLoadConfigEmptyOpsPortDisablesServer(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("OPS_PORT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.OpsPort)
}

func TestLoadConfigArchiveValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("ARCHIVE_BACKEND", "s3")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("fs needs a path", func(t *testing.T) {
		t.Setenv("ARCHIVE_BACKEND", "fs")
		t.Setenv("STORAGE_PATH", "")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("minio needs credentials", func(t *testing.T) {
		t.Setenv("ARCHIVE_BACKEND", "minio")
		t.Setenv("MINIO_ENDPOINT", "localhost:9000")
		t.Setenv("MINIO_ACCESS_KEY", "")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("fs with path", func(t *testing.T) {
		t.Setenv("ARCHIVE_BACKEND", "FS")
		t.Setenv("STORAGE_PATH", t.TempDir())
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "fs", cfg.ArchiveBackend)
	})
}
