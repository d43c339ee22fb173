package infra

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, override string
		want          zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", " ERROR ", zerolog.ErrorLevel},
		{"production", "nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		l := newLogger(&bytes.Buffer{}, tc.env, tc.override)
		assert.Equal(t, tc.want, l.GetLevel(), "env=%s override=%q", tc.env, tc.override)
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := Component(newLogger(&buf, "production", ""), "dispatcher")
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"dispatcher"`)
	assert.Contains(t, buf.String(), `"service":"multiverse-worker"`)
}
