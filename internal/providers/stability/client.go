// Package stability adapts the Stability AI structure control endpoint, which
// keeps the source layout while restyling it from a prompt.
package stability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

const (
	Engine = "stability"

	defaultBaseURL         = "https://api.stability.ai"
	structurePath          = "/v2beta/stable-image/control/structure"
	defaultControlStrength = 0.7
	maxPromptLength        = 10000
)

type Options struct {
	Key             providers.KeyFunc
	BaseURL         string
	ControlStrength float64
	NegativePrompt  string
	HTTPClient      *http.Client
	Timeout         time.Duration
	Logger          zerolog.Logger
}

type Client struct {
	key             providers.KeyFunc
	baseURL         string
	controlStrength float64
	negativePrompt  string
	http            *http.Client
	logger          zerolog.Logger
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = fetch.NewHTTPClient(opts.Timeout)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	strength := opts.ControlStrength
	if strength <= 0 || strength > 1 {
		strength = defaultControlStrength
	}
	return &Client{
		key:             opts.Key,
		baseURL:         baseURL,
		controlStrength: strength,
		negativePrompt:  strings.TrimSpace(opts.NegativePrompt),
		http:            hc,
		logger:          opts.Logger,
	}
}

func (c *Client) Name() string { return Engine }

// Edit posts the source as the structure control image. The endpoint answers
// with raw image bytes when Accept is image/*.
func (c *Client) Edit(ctx context.Context, src providers.Image, prompt string) providers.Outcome {
	key, err := providers.ResolveKey(ctx, Engine, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	if len(prompt) > maxPromptLength {
		prompt = prompt[:maxPromptLength]
	}
	form := fetch.NewForm().
		Field("prompt", prompt).
		Field("control_strength", strconv.FormatFloat(c.controlStrength, 'f', 2, 64)).
		Field("output_format", "png")
	if c.negativePrompt != "" {
		form.Field("negative_prompt", c.negativePrompt)
	}
	req, err := form.
		File("image", "source"+fetch.Extension(src.MIME), src.MIME, src.Data).
		Request(ctx, c.baseURL+structurePath)
	if err != nil {
		return providers.FromError(fmt.Errorf("%s: build request: %w", Engine, err))
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "image/*")

	raw, header, err := fetch.Do(c.http, Engine, req)
	if err != nil {
		return providers.FromError(err)
	}
	if reason := header.Get("Finish-Reason"); strings.EqualFold(reason, "CONTENT_FILTERED") {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: content filtered: %w", Engine, providers.ErrEmpty))
	}
	c.logger.Debug().Str("provider", Engine).Int("bytes", len(raw)).Msg("stability: produced image")
	return providers.Produced(providers.Image{Data: raw, MIME: fetch.SniffMIME(raw, header.Get("Content-Type"))})
}

var _ providers.Editor = (*Client)(nil)
