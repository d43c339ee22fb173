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

// ThemeRepositoryPG reads and seeds themes. Theme CRUD belongs to the API;
// the worker only needs this for local tooling.
type ThemeRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewThemeRepository(sql infra.SQLExecutor) *ThemeRepositoryPG {
	return &ThemeRepositoryPG{sql: sql}
}

func (r *ThemeRepositoryPG) Get(ctx context.Context, id uuid.UUID) (*domain.Theme, error) {
	var (
		theme     domain.Theme
		themeType string
		meta      []byte
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectTheme, id).Scan(&theme.ID, &theme.Name, &theme.GuidanceText, &themeType, &meta)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load theme %s: %w", id, err)
	}
	theme.Type = domain.ThemeType(themeType)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &theme.Metadata); err != nil {
			return nil, fmt.Errorf("decode theme metadata: %w", err)
		}
	}
	return &theme, nil
}

func (r *ThemeRepositoryPG) Upsert(ctx context.Context, theme domain.Theme) error {
	meta, err := marshalMetadata(theme.Metadata)
	if err != nil {
		return err
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertTheme, theme.ID, theme.Name, theme.GuidanceText, string(theme.Type), meta); err != nil {
		return fmt.Errorf("upsert theme %s: %w", theme.ID, err)
	}
	return nil
}
