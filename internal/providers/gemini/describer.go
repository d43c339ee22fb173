// Package gemini describes source images with Gemini vision through the
// genai SDK. It backs up the OpenAI vision describer.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

const (
	Name = "gemini-vision"

	defaultModel = "gemini-2.0-flash"
)

type Options struct {
	Key        providers.KeyFunc
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Describer lazily builds one SDK client per resolved key so a key rotated in
// the credentials store replaces the client on the next call.
type Describer struct {
	key     providers.KeyFunc
	model   string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger

	mu        sync.Mutex
	client    *genai.Client
	clientKey string
}

func NewDescriber(opts Options) *Describer {
	hc := opts.HTTPClient
	if hc == nil {
		hc = fetch.NewHTTPClient(opts.Timeout)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Describer{
		key:     opts.Key,
		model:   model,
		baseURL: strings.TrimSpace(opts.BaseURL),
		http:    hc,
		logger:  opts.Logger,
	}
}

func (d *Describer) Name() string { return Name }

func (d *Describer) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil && d.clientKey == key {
		return d.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: d.http,
	}
	if d.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: d.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: create client: %w", Name, err)
	}
	d.client, d.clientKey = client, key
	return client, nil
}

func (d *Describer) Describe(ctx context.Context, src providers.Image, instruction string) providers.Outcome {
	key, err := providers.ResolveKey(ctx, Name, d.key)
	if err != nil {
		return providers.FromError(err)
	}
	client, err := d.clientFor(ctx, key)
	if err != nil {
		return providers.Failed(providers.ReasonUnconfigured, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(src.Data, src.MIME),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}
	temperature := float32(0.4)
	resp, err := client.Models.GenerateContent(ctx, d.model, contents, &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 512,
	})
	if err != nil {
		return providers.FromError(translate(err))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: blocked by safety filter: %w", Name, providers.ErrEmpty))
	}
	text := resp.Text()
	d.logger.Debug().Str("model", d.model).Int("chars", len(text)).Msg("gemini: described image")
	return providers.Described(text)
}

// translate turns SDK API errors into the shared status error so they
// classify like every other provider.
func translate(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.StatusError{Provider: Name, Code: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("%s: %w", Name, err)
}

var _ providers.Describer = (*Describer)(nil)
