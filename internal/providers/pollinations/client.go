// Package pollinations adapts the keyless Pollinations image endpoint, the
// last resort in the text-to-image chain.
package pollinations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

const (
	Engine = "pollinations"

	defaultBaseURL = "https://image.pollinations.ai"
	defaultModel   = "turbo"
)

type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  zerolog.Logger
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
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{baseURL: baseURL, model: model, http: hc, logger: opts.Logger}
}

func (c *Client) Name() string { return Engine }

// URL builds the GET url that renders prompt.
func (c *Client) URL(prompt string) string {
	q := url.Values{}
	q.Set("height", "1024")
	q.Set("width", "1024")
	q.Set("nologo", "true")
	q.Set("model", c.model)
	return c.baseURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

func (c *Client) Generate(ctx context.Context, prompt string) providers.Outcome {
	if strings.TrimSpace(prompt) == "" {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: empty prompt: %w", Engine, providers.ErrEmpty))
	}
	img, err := fetch.Download(ctx, c.http, Engine, c.URL(prompt))
	if err != nil {
		return providers.FromError(err)
	}
	return providers.Produced(img)
}

var _ providers.Generator = (*Client)(nil)
