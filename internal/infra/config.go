package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents worker configuration loaded from environment variables.
type Config struct {
	AppEnv      string `validate:"required"`
	DatabaseURL string `validate:"required"`
	DBMaxConns  int    `validate:"gte=1"`

	WorkerCount   int           `validate:"gte=1"`
	QueueCapacity int           `validate:"gte=1"`
	PollInterval  time.Duration `validate:"gt=0"`
	ErrorBackoff  time.Duration `validate:"gte=0"`
	MaxAttempts   int           `validate:"gte=1"`
	StuckJobAge   time.Duration `validate:"gte=0"`
	OpsPort       string

	// OpenAI.RateLimit guards dall-e-3 generation; the gpt-image-1 edit
	// primary has its own budget and a bounded wait.
	OpenAI                ProviderConfig
	OpenAIImage1RateLimit string
	// PrimaryMaxWait caps the primary's limiter wait. Zero means one window
	// of its rate limit.
	PrimaryMaxWait time.Duration `validate:"gte=0"`
	Stability      ProviderConfig
	Qwen         ProviderConfig
	Gemini       ProviderConfig
	ModelsLab    ProviderConfig
	Pollinations ProviderConfig

	RedisURL string

	ArchiveBackend string `validate:"oneof=none fs minio"`
	StoragePath    string `validate:"required_if=ArchiveBackend fs"`
	MinIO          MinIOConfig
}

// ProviderConfig carries the settings shared by every upstream image backend.
type ProviderConfig struct {
	APIKey    string
	BaseURL   string `validate:"omitempty,url"`
	Model     string
	RateLimit string
}

// MinIOConfig configures the S3-compatible archive.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var validate = validator.New()

// LoadConfig loads configuration from the environment, reading .env files first
// when present, and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	workers := getEnvInt("WORKER_COUNT", 10)
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 20),

		WorkerCount:   workers,
		QueueCapacity: getEnvInt("QUEUE_CAPACITY", 2*workers),
		PollInterval:  getEnvDuration("POLL_INTERVAL", time.Second),
		ErrorBackoff:  getEnvDuration("ERROR_BACKOFF", 30*time.Second),
		MaxAttempts:   getEnvInt("MAX_ATTEMPTS", 5),
		StuckJobAge:   getEnvDuration("STUCK_JOB_AGE", 30*time.Minute),
		OpsPort:       getEnvAllowEmpty("OPS_PORT", "9090"),

		OpenAI: ProviderConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			BaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:     getEnv("OPENAI_VISION_MODEL", "gpt-4.1-mini"),
			RateLimit: getEnv("RATE_LIMIT_OPENAI", "5/1m"),
		},
		OpenAIImage1RateLimit: getEnv("RATE_LIMIT_OPENAI_IMAGE1", "5/1m"),
		PrimaryMaxWait:        getEnvDuration("PRIMARY_MAX_WAIT", 0),
		Stability: ProviderConfig{
			APIKey:    os.Getenv("STABILITY_API_KEY"),
			BaseURL:   getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),
			RateLimit: getEnv("RATE_LIMIT_STABILITY", "150/10s"),
		},
		Qwen: ProviderConfig{
			APIKey:    os.Getenv("QWEN_API_KEY"),
			BaseURL:   getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
			Model:     getEnv("QWEN_MODEL", "qwen-image-edit"),
			RateLimit: getEnv("RATE_LIMIT_QWEN", "60/1m"),
		},
		Gemini: ProviderConfig{
			APIKey:    os.Getenv("GEMINI_API_KEY"),
			BaseURL:   os.Getenv("GEMINI_BASE_URL"),
			Model:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			RateLimit: getEnv("RATE_LIMIT_GEMINI", "60/1m"),
		},
		ModelsLab: ProviderConfig{
			APIKey:    os.Getenv("MODELSLAB_API_KEY"),
			BaseURL:   getEnv("MODELSLAB_BASE_URL", "https://modelslab.com/api/v6"),
			Model:     getEnv("MODELSLAB_MODEL", "midjourney"),
			RateLimit: getEnv("RATE_LIMIT_MODELSLAB", "500/1m"),
		},
		Pollinations: ProviderConfig{
			BaseURL:   getEnv("POLLINATIONS_BASE_URL", "https://image.pollinations.ai"),
			Model:     getEnv("POLLINATIONS_MODEL", "turbo"),
			RateLimit: getEnv("RATE_LIMIT_POLLINATIONS", "500/1m"),
		},

		RedisURL: os.Getenv("REDIS_URL"),

		ArchiveBackend: strings.ToLower(getEnv("ARCHIVE_BACKEND", "none")),
		StoragePath:    os.Getenv("STORAGE_PATH"),
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "multiverse-results"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ArchiveBackend == "minio" && (cfg.MinIO.Endpoint == "" || cfg.MinIO.AccessKey == "" || cfg.MinIO.SecretKey == "") {
		return nil, fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio archive")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
