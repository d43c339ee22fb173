package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Reason
	}{
		{"throttled", &StatusError{Provider: "openai", Code: http.StatusTooManyRequests}, ReasonRateLimited},
		{"server error", fmt.Errorf("wrapped: %w", &StatusError{Provider: "qwen", Code: 502}), ReasonBadStatus},
		{"unconfigured", fmt.Errorf("stability: %w", ErrUnconfigured), ReasonUnconfigured},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformed), ReasonMalformed},
		{"empty", ErrEmpty, ReasonEmpty},
		{"transport", errors.New("dial tcp: connection refused"), ReasonTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := FromError(tc.err)
			assert.False(t, out.OK())
			assert.Equal(t, tc.want, out.Reason)
			assert.Equal(t, tc.err, out.Err)
		})
	}
}

func TestProducedRejectsEmptyPayload(t *testing.T) {
	out := Produced(Image{MIME: "image/png"})
	assert.False(t, out.OK())
	assert.Equal(t, ReasonEmpty, out.Reason)

	out = Produced(Image{Data: []byte{1}, MIME: "image/png"})
	assert.True(t, out.OK())

	assert.False(t, Described("   ").OK())
	assert.Equal(t, "a castle", Described(" a castle ").Text)
}

func TestResolveKey(t *testing.T) {
	ctx := context.Background()

	_, err := ResolveKey(ctx, "openai", StaticKey(" "))
	assert.ErrorIs(t, err, ErrUnconfigured)

	_, err = ResolveKey(ctx, "openai", nil)
	assert.ErrorIs(t, err, ErrUnconfigured)

	key, err := ResolveKey(ctx, "openai", StaticKey(" sk-1 "))
	require.NoError(t, err)
	assert.Equal(t, "sk-1", key)

	_, err = ResolveKey(ctx, "openai", func(context.Context) (string, error) { return "", errors.New("db down") })
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnconfigured)
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &StatusError{Provider: "modelslab", Code: 500, Body: string(long)}
	assert.Less(t, len(err.Error()), 260)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 199) + "é" + "tail"
	got := Truncate(s, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 199), got)

	assert.Equal(t, "日本", Truncate("日本語", 8))
	assert.Equal(t, "short", Truncate("short", 200))
	assert.Equal(t, "bad�byte", Truncate("bad\xffbyte", 200))
}

func TestStatusErrorBodyStaysValidUTF8(t *testing.T) {
	body := strings.Repeat("x", 199) + "ü" + strings.Repeat("y", 50)
	msg := (&StatusError{Provider: "qwen", Code: 500, Body: body}).Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
}
