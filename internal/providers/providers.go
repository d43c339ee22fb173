// Package providers defines the contract between the generation chain and the
// upstream image backends. Adapters never return errors for control flow; each
// call yields an Outcome that is either a payload or a typed failure reason.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Reason classifies why a provider produced no image.
type Reason string

const (
	ReasonRateLimited  Reason = "rate_limited"
	ReasonUnconfigured Reason = "unconfigured"
	ReasonTransport    Reason = "transport"
	ReasonBadStatus    Reason = "bad_status"
	ReasonMalformed    Reason = "malformed"
	ReasonEmpty        Reason = "empty"
)

var (
	ErrUnconfigured = errors.New("provider not configured")
	ErrMalformed    = errors.New("malformed response")
	ErrEmpty        = errors.New("empty response")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = Truncate(body, 200) + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, body)
}

// Truncate cuts s to at most n bytes without splitting a rune. Invalid
// sequences are replaced so the result is always valid UTF-8.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

// Image is raw image bytes with their MIME type.
type Image struct {
	Data []byte
	MIME string
}

// Outcome is the result of one provider call. Exactly one of Image, Text or
// Reason is meaningful.
type Outcome struct {
	Image  *Image
	Text   string
	Reason Reason
	Err    error
}

// OK reports whether the call produced a payload.
func (o Outcome) OK() bool {
	return o.Reason == "" && (o.Image != nil || o.Text != "")
}

func Produced(img Image) Outcome {
	if len(img.Data) == 0 {
		return Failed(ReasonEmpty, ErrEmpty)
	}
	return Outcome{Image: &img}
}

func Described(text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return Failed(ReasonEmpty, ErrEmpty)
	}
	return Outcome{Text: text}
}

func Failed(reason Reason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}

// FromError maps an adapter error onto a failure reason.
func FromError(err error) Outcome {
	var status *StatusError
	switch {
	case err == nil:
		return Failed(ReasonEmpty, ErrEmpty)
	case errors.As(err, &status):
		if status.Code == http.StatusTooManyRequests {
			return Failed(ReasonRateLimited, err)
		}
		return Failed(ReasonBadStatus, err)
	case errors.Is(err, ErrUnconfigured):
		return Failed(ReasonUnconfigured, err)
	case errors.Is(err, ErrMalformed):
		return Failed(ReasonMalformed, err)
	case errors.Is(err, ErrEmpty):
		return Failed(ReasonEmpty, err)
	default:
		return Failed(ReasonTransport, err)
	}
}

// Editor transforms a source image guided by a prompt.
type Editor interface {
	Name() string
	Edit(ctx context.Context, src Image, prompt string) Outcome
}

// Describer turns a source image into a text prompt.
type Describer interface {
	Name() string
	Describe(ctx context.Context, src Image, instruction string) Outcome
}

// Generator renders an image from text alone.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) Outcome
}

// KeyFunc resolves an API key at call time so keys rotated in the credentials
// store take effect without a restart.
type KeyFunc func(ctx context.Context) (string, error)

// StaticKey returns a KeyFunc for a fixed key.
func StaticKey(key string) KeyFunc {
	key = strings.TrimSpace(key)
	return func(context.Context) (string, error) { return key, nil }
}

// ResolveKey calls fn and returns ErrUnconfigured when no key is available.
func ResolveKey(ctx context.Context, provider string, fn KeyFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("%s: %w", provider, ErrUnconfigured)
	}
	key, err := fn(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: resolve key: %w", provider, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s: %w", provider, ErrUnconfigured)
	}
	return strings.TrimSpace(key), nil
}
