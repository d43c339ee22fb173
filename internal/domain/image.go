package domain

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Image is a stored blob. Source uploads and generated results share this shape.
type Image struct {
	ID       uuid.UUID
	UserID   string
	Data     []byte
	MIMEType string
	Metadata map[string]any
}

// ThemeType tags what kind of transformation a theme describes.
type ThemeType string

const (
	ThemeTypeArt          ThemeType = "art"
	ThemeTypeProduct      ThemeType = "product"
	ThemeTypeUserUploaded ThemeType = "user_uploaded"
)

// Theme is a named style descriptor applied to a source image.
type Theme struct {
	ID           uuid.UUID
	Name         string
	GuidanceText string
	Type         ThemeType
	Metadata     map[string]any
}

// Guidance returns the text used to steer generation, falling back to the
// theme name when no guidance was authored.
func (t Theme) Guidance() string {
	if g := strings.TrimSpace(t.GuidanceText); g != "" {
		return g
	}
	return strings.TrimSpace(t.Name)
}

// ReferenceURL returns the optional reference asset stored in metadata.
func (t Theme) ReferenceURL() string {
	if t.Metadata == nil {
		return ""
	}
	if v, ok := t.Metadata["reference_url"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// ThemeFromDetail rebuilds the theme carried on a claimed job.
func ThemeFromDetail(d JobDetail) Theme {
	theme := Theme{
		ID:           d.ThemeID,
		Name:         d.ThemeName,
		GuidanceText: d.ThemeGuidance,
		Type:         d.ThemeType,
	}
	if len(d.ThemeMetadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(d.ThemeMetadata, &meta); err == nil {
			theme.Metadata = meta
		}
	}
	return theme
}
