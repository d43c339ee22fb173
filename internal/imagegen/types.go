package imagegen

import (
	"time"

	"multiverse/internal/domain"
	"multiverse/internal/providers"
	"multiverse/internal/ratelimit"
)

const (
	MethodImageToImage       = "image_to_image"
	MethodDescriptionToImage = "description_to_image"
)

// Request is one generation: a source image restyled with a theme.
type Request struct {
	Source   providers.Image
	UserText string
	Theme    domain.Theme
}

// Result carries the winning image and the engine that produced it.
type Result struct {
	Image  providers.Image
	Engine string
	Method string
}

// EditStep is one image-to-image provider in the chain. Blocking steps wait
// for their limiter, for at most MaxWait when it is set; others skip the
// provider when no slot is free.
type EditStep struct {
	Editor   providers.Editor
	Limiter  ratelimit.Limiter
	Blocking bool
	MaxWait  time.Duration
}

type DescribeStep struct {
	Describer providers.Describer
	Limiter   ratelimit.Limiter
}

type GenerateStep struct {
	Generator providers.Generator
	Limiter   ratelimit.Limiter
}

// Observer receives one call per provider attempt. An empty reason means the
// provider succeeded.
type Observer interface {
	ProviderAttempt(provider string, reason providers.Reason, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ProviderAttempt(string, providers.Reason, time.Duration) {}
