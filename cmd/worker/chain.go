package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"multiverse/internal/imagegen"
	"multiverse/internal/infra"
	"multiverse/internal/infra/credentials"
	"multiverse/internal/providers"
	"multiverse/internal/providers/gemini"
	"multiverse/internal/providers/modelslab"
	"multiverse/internal/providers/openai"
	"multiverse/internal/providers/pollinations"
	"multiverse/internal/providers/qwen"
	"multiverse/internal/providers/stability"
	"multiverse/internal/ratelimit"
)

// limitSpecs maps each engine to its configured R/W budget. Engines without
// an entry run unlimited.
func limitSpecs(cfg *infra.Config) map[string]string {
	return map[string]string{
		openai.EngineEdit:     cfg.OpenAIImage1RateLimit,
		openai.EngineGenerate: cfg.OpenAI.RateLimit,
		stability.Engine:      cfg.Stability.RateLimit,
		qwen.Engine:           cfg.Qwen.RateLimit,
		gemini.Name:           cfg.Gemini.RateLimit,
		modelslab.Engine:      cfg.ModelsLab.RateLimit,
		pollinations.Engine:   cfg.Pollinations.RateLimit,
	}
}

func newLimiters(cfg *infra.Config, rdb *redis.Client, logger zerolog.Logger) (*ratelimit.Set, error) {
	return ratelimit.NewSet(limitSpecs(cfg), rdb, logger)
}

// primaryMaxWait is PRIMARY_MAX_WAIT, or one window of the primary's limit.
func primaryMaxWait(cfg *infra.Config, limits *ratelimit.Set) time.Duration {
	if cfg.PrimaryMaxWait > 0 {
		return cfg.PrimaryMaxWait
	}
	if spec, ok := limits.Spec(openai.EngineEdit); ok {
		return spec.Window
	}
	return 0
}

// keyFor prefers the environment key and falls back to integration_tokens.
func keyFor(store *credentials.Store, provider, configured string) providers.KeyFunc {
	return func(ctx context.Context) (string, error) {
		return store.Resolve(ctx, provider, configured)
	}
}

// buildChain assembles the fallback order: gpt-image-1 edit (blocking),
// Stability structure, Qwen edit, then a describer feeding dall-e-3,
// ModelsLab and Pollinations.
func buildChain(cfg *infra.Config, store *credentials.Store, limits *ratelimit.Set, observer imagegen.Observer, logger zerolog.Logger) imagegen.Config {
	oa := openai.NewClient(openai.Options{
		Key:         keyFor(store, credentials.ProviderOpenAI, cfg.OpenAI.APIKey),
		BaseURL:     cfg.OpenAI.BaseURL,
		VisionModel: cfg.OpenAI.Model,
		Logger:      infra.Component(logger, "openai"),
	})
	st := stability.NewClient(stability.Options{
		Key:     keyFor(store, credentials.ProviderStability, cfg.Stability.APIKey),
		BaseURL: cfg.Stability.BaseURL,
		Logger:  infra.Component(logger, "stability"),
	})
	qw := qwen.NewClient(qwen.Options{
		Key:     keyFor(store, credentials.ProviderQwen, cfg.Qwen.APIKey),
		BaseURL: cfg.Qwen.BaseURL,
		Model:   cfg.Qwen.Model,
		Logger:  infra.Component(logger, "qwen"),
	})
	gm := gemini.NewDescriber(gemini.Options{
		Key:     keyFor(store, credentials.ProviderGemini, cfg.Gemini.APIKey),
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Logger:  infra.Component(logger, "gemini"),
	})
	ml := modelslab.NewClient(modelslab.Options{
		Key:     keyFor(store, credentials.ProviderModelsLab, cfg.ModelsLab.APIKey),
		BaseURL: cfg.ModelsLab.BaseURL,
		Model:   cfg.ModelsLab.Model,
		Logger:  infra.Component(logger, "modelslab"),
	})
	pl := pollinations.NewClient(pollinations.Options{
		BaseURL: cfg.Pollinations.BaseURL,
		Model:   cfg.Pollinations.Model,
		Logger:  infra.Component(logger, "pollinations"),
	})

	edits := []providers.Editor{oa.Edit(), st, qw}
	editSteps := make([]imagegen.EditStep, len(edits))
	for i, e := range edits {
		editSteps[i] = imagegen.EditStep{Editor: e, Limiter: limits.Get(e.Name())}
	}
	editSteps[0].Blocking = true
	editSteps[0].MaxWait = primaryMaxWait(cfg, limits)

	describers := []providers.Describer{oa.Vision(), gm}
	describeSteps := make([]imagegen.DescribeStep, len(describers))
	for i, d := range describers {
		describeSteps[i] = imagegen.DescribeStep{Describer: d, Limiter: limits.Get(d.Name())}
	}

	generators := []providers.Generator{oa.Generate(), ml, pl}
	generateSteps := make([]imagegen.GenerateStep, len(generators))
	for i, g := range generators {
		generateSteps[i] = imagegen.GenerateStep{Generator: g, Limiter: limits.Get(g.Name())}
	}

	return imagegen.Config{
		Edits:      editSteps,
		Describers: describeSteps,
		Generators: generateSteps,
		Observer:   observer,
		Logger:     logger,
	}
}
