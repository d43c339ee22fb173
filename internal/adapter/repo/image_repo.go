package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"multiverse/internal/domain"
	"multiverse/internal/infra"
	"multiverse/internal/sqlinline"
)

// ImageRepositoryPG implements domain.ImageStore.
type ImageRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewImageRepository(sql infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{sql: sql}
}

func (r *ImageRepositoryPG) Upsert(ctx context.Context, img domain.Image) error {
	meta, err := marshalMetadata(img.Metadata)
	if err != nil {
		return err
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertImage, img.ID, img.UserID, img.Data, img.MIMEType, meta); err != nil {
		return fmt.Errorf("upsert image %s: %w", img.ID, err)
	}
	return nil
}

func (r *ImageRepositoryPG) Get(ctx context.Context, id uuid.UUID) (*domain.Image, error) {
	var (
		img  domain.Image
		mime *string
		meta []byte
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectImage, id).Scan(&img.ID, &img.UserID, &img.Data, &mime, &meta)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load image %s: %w", id, err)
	}
	if mime != nil {
		img.MIMEType = *mime
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &img.Metadata); err != nil {
			return nil, fmt.Errorf("decode image metadata: %w", err)
		}
	}
	return &img, nil
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

var _ domain.ImageStore = (*ImageRepositoryPG)(nil)
