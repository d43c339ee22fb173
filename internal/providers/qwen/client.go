// Package qwen adapts the DashScope Qwen image edit model.
package qwen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/providers"
	"multiverse/internal/providers/fetch"
)

const (
	Engine = "qwen-edit"

	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	defaultModel   = "qwen-image-edit"
	generationPath = "/services/aigc/multimodal-generation/generation"
)

// Options configures the DashScope client.
type Options struct {
	Key            providers.KeyFunc
	BaseURL        string
	Model          string
	NegativePrompt string
	Watermark      bool
	HTTPClient     *http.Client
	Timeout        time.Duration
	Logger         zerolog.Logger
}

// Client performs image edits against DashScope.
type Client struct {
	key            providers.KeyFunc
	baseURL        string
	model          string
	negativePrompt string
	watermark      bool
	http           *http.Client
	logger         zerolog.Logger
}

type editRequest struct {
	Model      string     `json:"model"`
	Input      editInput  `json:"input"`
	Parameters editParams `json:"parameters"`
}

type editInput struct {
	Messages []editMessage `json:"messages"`
}

type editMessage struct {
	Role    string        `json:"role"`
	Content []editContent `json:"content"`
}

type editContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type editParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Watermark      bool   `json:"watermark"`
}

type editResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
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
		watermark:      opts.Watermark,
		http:           hc,
		logger:         opts.Logger,
	}
}

func (c *Client) Name() string { return Engine }

// Edit sends the source inline as a data URI with the prompt as instruction,
// then downloads the image URL DashScope returns.
func (c *Client) Edit(ctx context.Context, src providers.Image, prompt string) providers.Outcome {
	key, err := providers.ResolveKey(ctx, Engine, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	payload := editRequest{
		Model: c.model,
		Input: editInput{Messages: []editMessage{{
			Role: "user",
			Content: []editContent{
				{Image: "data:" + src.MIME + ";base64," + base64.StdEncoding.EncodeToString(src.Data)},
				{Text: prompt},
			},
		}}},
		Parameters: editParams{NegativePrompt: c.negativePrompt, Watermark: c.watermark},
	}
	var resp editResponse
	headers := map[string]string{"Authorization": "Bearer " + key}
	if err := fetch.PostJSON(ctx, c.http, Engine, c.baseURL+generationPath, headers, payload, &resp); err != nil {
		return providers.FromError(err)
	}
	if resp.Code != "" {
		return providers.Failed(providers.ReasonBadStatus, fmt.Errorf("%s: %s (%s)", Engine, resp.Message, resp.Code))
	}
	imageURL := firstImageURL(resp)
	if imageURL == "" {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: empty image url: %w", Engine, providers.ErrEmpty))
	}
	img, err := fetch.Download(ctx, c.http, Engine, imageURL)
	if err != nil {
		return providers.FromError(err)
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", resp.RequestID).
		Msg("qwen: edited image")
	return providers.Produced(img)
}

func firstImageURL(resp editResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

var _ providers.Editor = (*Client)(nil)
