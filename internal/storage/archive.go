// Package storage mirrors finished results outside Postgres. The database
// blob stays authoritative; archives are best effort.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multiverse/internal/providers/fetch"
)

// Archive stores a copy of a result image.
type Archive interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, mimeType string) (string, error)
}

// Backend settings, mirroring infra.Config.
type Options struct {
	Backend     string
	StoragePath string
	MinIO       MinIOOptions
}

// Open returns the configured archive, or nil for backend "none".
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (Archive, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "none":
		return nil, nil
	case "fs":
		fs, err := NewFileStore(opts.StoragePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", opts.StoragePath).Msg("storage: filesystem archive enabled")
		return fs, nil
	case "minio":
		store, err := NewMinIOStore(ctx, opts.MinIO)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("endpoint", opts.MinIO.Endpoint).Str("bucket", opts.MinIO.Bucket).Msg("storage: minio archive enabled")
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

// ResultKey lays results out as results/<batch>/<result id><ext>.
func ResultKey(batchID, resultImageID uuid.UUID, mimeType string) string {
	return path.Join("results", batchID.String(), resultImageID.String()+fetch.Extension(mimeType))
}
