// Package imagegen runs a themed generation through the provider fallback
// chain: image-to-image editors first, then describe-then-generate.
package imagegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"multiverse/internal/domain"
	"multiverse/internal/providers"
	"multiverse/internal/ratelimit"
)

type Config struct {
	Edits      []EditStep
	Describers []DescribeStep
	Generators []GenerateStep
	Observer   Observer
	Logger     zerolog.Logger
}

// Orchestrator is safe for concurrent use; all shared state lives in the
// limiters and providers it was built with.
type Orchestrator struct {
	edits      []EditStep
	describers []DescribeStep
	generators []GenerateStep
	observer   Observer
	logger     zerolog.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Orchestrator{
		edits:      cfg.Edits,
		describers: cfg.Describers,
		generators: cfg.Generators,
		observer:   obs,
		logger:     cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// attempts collects "provider=reason" pairs for the exhaustion error.
type attempts []string

func (a *attempts) add(name string, reason providers.Reason) {
	*a = append(*a, name+"="+string(reason))
}

// Generate returns the first image any provider produces. Order is fixed.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	if len(req.Source.Data) == 0 {
		return Result{}, domain.ErrMissingSource
	}
	guidance := req.Theme.Guidance()
	if guidance == "" {
		return Result{}, domain.ErrMissingTheme
	}

	var tried attempts

	editPrompt := BuildEditPrompt(guidance, req.UserText)
	for _, step := range o.edits {
		name := step.Editor.Name()
		ok, err := o.acquire(ctx, step)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("%s: wait for rate limit: %w", name, err)
			}
			// Limiter backend failure, not a cancellation: treat as a skip.
			o.logger.Warn().Err(err).Str("provider", name).Msg("orchestrator: limiter unavailable")
		}
		if !ok {
			o.skip(name, &tried)
			continue
		}
		out := o.observe(name, func() providers.Outcome {
			return step.Editor.Edit(ctx, req.Source, editPrompt)
		})
		if out.OK() {
			return Result{Image: *out.Image, Engine: name, Method: MethodImageToImage}, nil
		}
		o.failed(name, out, &tried)
	}

	if len(o.generators) > 0 {
		prompt := o.describe(ctx, req, guidance, &tried)
		if prompt != "" {
			for _, step := range o.generators {
				name := step.Generator.Name()
				if !limiterOf(step.Limiter).Allow(ctx) {
					o.skip(name, &tried)
					continue
				}
				out := o.observe(name, func() providers.Outcome {
					return step.Generator.Generate(ctx, prompt)
				})
				if out.OK() {
					return Result{Image: *out.Image, Engine: name, Method: MethodDescriptionToImage}, nil
				}
				o.failed(name, out, &tried)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, fmt.Errorf("%w: %s", domain.ErrProvidersExhausted, strings.Join(tried, ", "))
}

// describe walks the describer chain and returns the first text prompt.
func (o *Orchestrator) describe(ctx context.Context, req Request, guidance string, tried *attempts) string {
	instruction := BuildDescribeInstruction(guidance, req.UserText)
	for _, step := range o.describers {
		name := step.Describer.Name()
		if !limiterOf(step.Limiter).Allow(ctx) {
			o.skip(name, tried)
			continue
		}
		out := o.observe(name, func() providers.Outcome {
			return step.Describer.Describe(ctx, req.Source, instruction)
		})
		if out.OK() {
			o.logger.Debug().Str("provider", name).Int("chars", len(out.Text)).Msg("orchestrator: source described")
			return CleanText(out.Text, 0)
		}
		o.failed(name, out, tried)
	}
	return ""
}

// acquire takes a slot for an edit step. A blocking wait that runs out its
// MaxWait reports no slot and no error, same as a rejected Allow.
func (o *Orchestrator) acquire(ctx context.Context, step EditStep) (bool, error) {
	l := limiterOf(step.Limiter)
	if !step.Blocking {
		return l.Allow(ctx), nil
	}
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if step.MaxWait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, step.MaxWait)
	}
	defer cancel()
	if err := l.Wait(waitCtx); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			o.logger.Debug().Str("provider", step.Editor.Name()).Dur("max_wait", step.MaxWait).Msg("orchestrator: rate limit wait exhausted")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) observe(name string, call func() providers.Outcome) providers.Outcome {
	start := time.Now()
	out := call()
	o.observer.ProviderAttempt(name, out.Reason, time.Since(start))
	return out
}

func (o *Orchestrator) skip(name string, tried *attempts) {
	o.observer.ProviderAttempt(name, providers.ReasonRateLimited, 0)
	o.logger.Info().Str("provider", name).Msg("orchestrator: rate limited, skipping provider")
	tried.add(name, providers.ReasonRateLimited)
}

func (o *Orchestrator) failed(name string, out providers.Outcome, tried *attempts) {
	reason := out.Reason
	if reason == "" {
		reason = providers.ReasonEmpty
	}
	o.logger.Warn().Err(out.Err).Str("provider", name).Str("reason", string(reason)).Msg("orchestrator: provider failed")
	tried.add(name, reason)
}

func limiterOf(l ratelimit.Limiter) ratelimit.Limiter {
	if l == nil {
		return ratelimit.Unlimited{}
	}
	return l
}
