// Package openai adapts the OpenAI image and vision endpoints.
package openai

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
	EngineEdit     = "image1"
	EngineGenerate = "openai"
	NameVision     = "openai-vision"

	defaultBaseURL     = "https://api.openai.com/v1"
	defaultEditModel   = "gpt-image-1"
	defaultImageModel  = "dall-e-3"
	defaultVisionModel = "gpt-4.1-mini"
	imageSize          = "1024x1024"
)

type Options struct {
	Key          providers.KeyFunc
	BaseURL      string
	Organization string
	EditModel    string
	ImageModel   string
	VisionModel  string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// Client talks to one OpenAI account. Edit, Generate and Vision expose it as
// the three provider roles it fills in the chain.
type Client struct {
	key          providers.KeyFunc
	baseURL      string
	organization string
	editModel    string
	imageModel   string
	visionModel  string
	http         *http.Client
	logger       zerolog.Logger
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
	return &Client{
		key:          opts.Key,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		editModel:    coalesce(opts.EditModel, defaultEditModel),
		imageModel:   coalesce(opts.ImageModel, defaultImageModel),
		visionModel:  coalesce(opts.VisionModel, defaultVisionModel),
		http:         hc,
		logger:       opts.Logger,
	}
}

func (c *Client) headers(key string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + key}
	if c.organization != "" {
		h["OpenAI-Organization"] = c.organization
	}
	return h
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// firstImage decodes inline base64 data or downloads the returned URL.
func (c *Client) firstImage(ctx context.Context, provider string, resp imageResponse) (providers.Image, error) {
	for _, item := range resp.Data {
		if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
			data, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return providers.Image{}, fmt.Errorf("%s: decode b64_json: %w", provider, providers.ErrMalformed)
			}
			return providers.Image{Data: data, MIME: fetch.SniffMIME(data, "image/png")}, nil
		}
		if u := strings.TrimSpace(item.URL); u != "" {
			return fetch.Download(ctx, c.http, provider, u)
		}
	}
	return providers.Image{}, fmt.Errorf("%s: no image in response: %w", provider, providers.ErrEmpty)
}

// Edit returns the gpt-image-1 image-to-image provider.
func (c *Client) Edit() providers.Editor { return editor{c} }

// Generate returns the dall-e-3 text-to-image provider.
func (c *Client) Generate() providers.Generator { return generator{c} }

// Vision returns the describer backed by the chat completions endpoint.
func (c *Client) Vision() providers.Describer { return vision{c} }

type editor struct{ c *Client }

func (e editor) Name() string { return EngineEdit }

func (e editor) Edit(ctx context.Context, src providers.Image, prompt string) providers.Outcome {
	c := e.c
	key, err := providers.ResolveKey(ctx, EngineEdit, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	req, err := fetch.NewForm().
		Field("model", c.editModel).
		Field("prompt", prompt).
		Field("size", imageSize).
		Field("n", "1").
		File("image", "source"+fetch.Extension(src.MIME), src.MIME, src.Data).
		Request(ctx, c.baseURL+"/images/edits")
	if err != nil {
		return providers.FromError(fmt.Errorf("%s: build request: %w", EngineEdit, err))
	}
	for k, v := range c.headers(key) {
		req.Header.Set(k, v)
	}
	raw, _, err := fetch.Do(c.http, EngineEdit, req)
	if err != nil {
		return providers.FromError(err)
	}
	var resp imageResponse
	if err := fetch.Decode(EngineEdit, raw, &resp); err != nil {
		return providers.FromError(err)
	}
	img, err := c.firstImage(ctx, EngineEdit, resp)
	if err != nil {
		return providers.FromError(err)
	}
	c.logger.Debug().Str("provider", EngineEdit).Int("bytes", len(img.Data)).Msg("openai: edit produced image")
	return providers.Produced(img)
}

type generator struct{ c *Client }

func (g generator) Name() string { return EngineGenerate }

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

func (g generator) Generate(ctx context.Context, prompt string) providers.Outcome {
	c := g.c
	key, err := providers.ResolveKey(ctx, EngineGenerate, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	payload := generationRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           imageSize,
		ResponseFormat: "b64_json",
	}
	var resp imageResponse
	if err := fetch.PostJSON(ctx, c.http, EngineGenerate, c.baseURL+"/images/generations", c.headers(key), payload, &resp); err != nil {
		return providers.FromError(err)
	}
	img, err := c.firstImage(ctx, EngineGenerate, resp)
	if err != nil {
		return providers.FromError(err)
	}
	return providers.Produced(img)
}

type vision struct{ c *Client }

func (v vision) Name() string { return NameVision }

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string     `json:"type"`
	Text     string     `json:"text,omitempty"`
	ImageURL *chatImage `json:"image_url,omitempty"`
}

type chatImage struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (v vision) Describe(ctx context.Context, src providers.Image, instruction string) providers.Outcome {
	c := v.c
	key, err := providers.ResolveKey(ctx, NameVision, c.key)
	if err != nil {
		return providers.FromError(err)
	}
	dataURL := "data:" + src.MIME + ";base64," + base64.StdEncoding.EncodeToString(src.Data)
	payload := chatRequest{
		Model:     c.visionModel,
		MaxTokens: 500,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &chatImage{URL: dataURL}},
			},
		}},
	}
	var resp chatResponse
	if err := fetch.PostJSON(ctx, c.http, NameVision, c.baseURL+"/chat/completions", c.headers(key), payload, &resp); err != nil {
		return providers.FromError(err)
	}
	if len(resp.Choices) == 0 {
		return providers.Failed(providers.ReasonEmpty, fmt.Errorf("%s: no choices: %w", NameVision, providers.ErrEmpty))
	}
	return providers.Described(resp.Choices[0].Message.Content)
}

func coalesce(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
