// Package modelslab adapts the ModelsLab realtime text-to-image API.
package modelslab

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

const (
	Engine = "modelslab"

	defaultBaseURL = "https://modelslab.com/api/v6"
	defaultModel   = "midjourney"
	text2imgPath   = "/realtime/text2img"
)

type Options struct {
	Key            providers.KeyFunc
	BaseURL        string
	Model          string
	NegativePrompt string
	HTTPClient     *http.Client
	Timeout        time.Duration
	Logger         zerolog.Logger
}

type Client struct {
	key            providers.KeyFunc
	baseURL        string
	model          string
	negativePrompt string
	http           *http.Client
	logger         zerolog.Logger
}

// ModelsLab takes dimensions and sample counts as strings.
type text2imgRequest struct {
	Key               string  `json:"key"`
	ModelID           string  `json:"model_id"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             string  `json:"width"`
	Height            string  `json:"height"`
	Samples           string  `json:"samples"`
	SafetyChecker     bool    `json:"safety_checker"`
	EnhancePrompt     bool    `json:"enhance_prompt"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps string  `json:"num_inference_steps"`
}

type text2imgResponse struct {
	Status  string   `json:"status"`
	Output  []string `json:"output"`
	Message string   `json:"message"`
	Tip     string   `json:"tip"`
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
	return &Client{
		key:            opts.Key,
		baseURL:        baseURL,
		model:          model,
		negativePrompt: strings.TrimSpace(opts.NegativePrompt),
		http:           hc,
		logger:         opts.Logger,
	}
}

func (c *Client) Name() string { return Engine }

// Generate renders prompt and downloads the first output URL. The API reports
// failures inside a 200 body, so status must be "success".
func (c *Client) Generate(ctx context.Context, prompt string) providers.Outcome {
	key, err := providers.ResolveKey(ctx, Engine, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	payload := text2imgRequest{
		Key:               key,
		ModelID:           c.model,
		Prompt:            prompt,
		NegativePrompt:    c.negativePrompt,
		Width:             "1024",
		Height:            "1024",
		Samples:           "1",
		SafetyChecker:     true,
		GuidanceScale:     7.5,
		NumInferenceSteps: "30",
	}
	var resp text2imgResponse
	if err := fetch.PostJSON(ctx, c.http, Engine, c.baseURL+text2imgPath, nil, payload, &resp); err != nil {
		return providers.FromError(err)
	}
	if !strings.EqualFold(resp.Status, "success") {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = resp.Status
		}
		return providers.Failed(providers.ReasonBadStatus, fmt.Errorf("%s: %s", Engine, msg))
	}
	if len(resp.Output) == 0 || strings.TrimSpace(resp.Output[0]) == "" {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: no output: %w", Engine, providers.ErrEmpty))
	}
	img, err := fetch.Download(ctx, c.http, Engine, resp.Output[0])
	if err != nil {
		return providers.FromError(err)
	}
	return providers.Produced(img)
}

var _ providers.Generator = (*Client)(nil)
