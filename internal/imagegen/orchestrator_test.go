package imagegen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiverse/internal/domain"
	"multiverse/internal/providers"
	"multiverse/internal/ratelimit"
)

type fakeEditor struct {
	name  string
	out   providers.Outcome
	calls int
	mu    sync.Mutex
}

func (f *fakeEditor) Name() string { return f.name }

func (f *fakeEditor) Edit(context.Context, providers.Image, string) providers.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.out
}

type fakeDescriber struct {
	name  string
	out   providers.Outcome
	calls int
}

func (f *fakeDescriber) Name() string { return f.name }

func (f *fakeDescriber) Describe(context.Context, providers.Image, string) providers.Outcome {
	f.calls++
	return f.out
}

type fakeGenerator struct {
	name   string
	out    providers.Outcome
	calls  int
	prompt string
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) Generate(_ context.Context, prompt string) providers.Outcome {
	f.calls++
	f.prompt = prompt
	return f.out
}

// denyLimiter rejects every Allow and fails every Wait.
type denyLimiter struct{}

func (denyLimiter) Wait(ctx context.Context) error { return context.DeadlineExceeded }
func (denyLimiter) Allow(context.Context) bool      { return false }

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) ProviderAttempt(provider string, reason providers.Reason, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, provider+":"+string(reason))
}

var (
	source = providers.Image{Data: []byte("SRC"), MIME: "image/png"}
	theme  = domain.Theme{ID: uuid.New(), Name: "Ukiyo-e", GuidanceText: "Edo period woodblock print"}
	failed = providers.Failed(providers.ReasonBadStatus, errors.New("boom"))
)

func produced(b string) providers.Outcome {
	return providers.Produced(providers.Image{Data: []byte(b), MIME: "image/png"})
}

func TestGenerateFallsThroughToThirdProvider(t *testing.T) {
	p1 := &fakeEditor{name: "provider1", out: failed}
	p2 := &fakeEditor{name: "provider2", out: providers.Failed(providers.ReasonTransport, errors.New("dial"))}
	p3 := &fakeEditor{name: "provider3", out: produced("IMG3")}
	obs := &recordingObserver{}

	o := NewOrchestrator(Config{
		Edits: []EditStep{
			{Editor: p1, Blocking: true},
			{Editor: p2},
			{Editor: p3},
		},
		Observer: obs,
	})

	res, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.NoError(t, err)
	assert.Equal(t, "provider3", res.Engine)
	assert.Equal(t, []byte("IMG3"), res.Image.Data)
	assert.Equal(t, MethodImageToImage, res.Method)
	assert.Equal(t, []string{"provider1:bad_status", "provider2:transport", "provider3:"}, obs.calls)
}

func TestGenerateStopsAtFirstSuccess(t *testing.T) {
	p1 := &fakeEditor{name: "provider1", out: produced("IMG1")}
	p3 := &fakeEditor{name: "provider3", out: produced("IMG3")}
	gen := &fakeGenerator{name: "gen", out: produced("GEN")}

	o := NewOrchestrator(Config{
		Edits:      []EditStep{{Editor: p1, Blocking: true}, {Editor: p3}},
		Generators: []GenerateStep{{Generator: gen}},
	})

	res, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.NoError(t, err)
	assert.Equal(t, "provider1", res.Engine)
	assert.Zero(t, p3.calls)
	assert.Zero(t, gen.calls)
}

func TestGenerateSkipsProviderWhenAllowRejected(t *testing.T) {
	limited := &fakeEditor{name: "limited", out: produced("NEVER")}
	next := &fakeEditor{name: "next", out: produced("NEXT")}
	obs := &recordingObserver{}

	o := NewOrchestrator(Config{
		Edits:    []EditStep{{Editor: limited, Limiter: denyLimiter{}}, {Editor: next}},
		Observer: obs,
	})

	res, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.NoError(t, err)
	assert.Equal(t, "next", res.Engine)
	assert.Zero(t, limited.calls)
	assert.Equal(t, "limited:rate_limited", obs.calls[0])
}

func TestGenerateSixthAllowMakesNoCall(t *testing.T) {
	p := &fakeEditor{name: "stability", out: failed}
	limiter := ratelimit.NewWindow(ratelimit.Spec{Limit: 5, Window: time.Hour})
	o := NewOrchestrator(Config{Edits: []EditStep{{Editor: p, Limiter: limiter}}})

	for i := 0; i < 6; i++ {
		_, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
		require.ErrorIs(t, err, domain.ErrProvidersExhausted)
	}
	assert.Equal(t, 5, p.calls)
}

func TestGenerateDescribeThenGenerate(t *testing.T) {
	edit := &fakeEditor{name: "image1", out: failed}
	vision := &fakeDescriber{name: "openai-vision", out: providers.Failed(providers.ReasonUnconfigured, providers.ErrUnconfigured)}
	backup := &fakeDescriber{name: "gemini-vision", out: providers.Described("A samurai cat\n on a bridge")}
	dalle := &fakeGenerator{name: "openai", out: providers.Failed(providers.ReasonMalformed, providers.ErrMalformed)}
	pollinations := &fakeGenerator{name: "pollinations", out: produced("POLL")}

	o := NewOrchestrator(Config{
		Edits:      []EditStep{{Editor: edit}},
		Describers: []DescribeStep{{Describer: vision}, {Describer: backup}},
		Generators: []GenerateStep{{Generator: dalle}, {Generator: pollinations}},
	})

	res, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.NoError(t, err)
	assert.Equal(t, "pollinations", res.Engine)
	assert.Equal(t, MethodDescriptionToImage, res.Method)
	assert.Equal(t, "A samurai cat on a bridge", pollinations.prompt)
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestGenerateSkipsTextToImageWhenNothingDescribed(t *testing.T) {
	vision := &fakeDescriber{name: "openai-vision", out: providers.Failed(providers.ReasonEmpty, providers.ErrEmpty)}
	gen := &fakeGenerator{name: "openai", out: produced("GEN")}

	o := NewOrchestrator(Config{
		Describers: []DescribeStep{{Describer: vision}},
		Generators: []GenerateStep{{Generator: gen}},
	})

	_, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.ErrorIs(t, err, domain.ErrProvidersExhausted)
	assert.Contains(t, err.Error(), "openai-vision=empty")
	assert.Zero(t, gen.calls)
}

func TestGenerateRejectsMissingInputs(t *testing.T) {
	o := NewOrchestrator(Config{})

	_, err := o.Generate(context.Background(), Request{Theme: theme})
	assert.ErrorIs(t, err, domain.ErrMissingSource)

	_, err = o.Generate(context.Background(), Request{Source: source})
	assert.ErrorIs(t, err, domain.ErrMissingTheme)
}

func TestGenerateBlockingWaitHonoursContext(t *testing.T) {
	p := &fakeEditor{name: "image1", out: produced("IMG")}
	limiter := ratelimit.NewWindow(ratelimit.Spec{Limit: 1, Window: time.Hour})
	require.True(t, limiter.Allow(context.Background()))

	o := NewOrchestrator(Config{Edits: []EditStep{{Editor: p, Limiter: limiter, Blocking: true}}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Generate(ctx, Request{Source: source, Theme: theme})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.calls)
}

func TestGenerateBoundedWaitFallsThrough(t *testing.T) {
	p1 := &fakeEditor{name: "image1", out: produced("IMG1")}
	p2 := &fakeEditor{name: "stability", out: produced("IMG2")}
	limiter := ratelimit.NewWindow(ratelimit.Spec{Limit: 1, Window: time.Hour})
	require.True(t, limiter.Allow(context.Background()))
	obs := &recordingObserver{}

	o := NewOrchestrator(Config{
		Edits: []EditStep{
			{Editor: p1, Limiter: limiter, Blocking: true, MaxWait: 30 * time.Millisecond},
			{Editor: p2},
		},
		Observer: obs,
	})

	start := time.Now()
	res, err := o.Generate(context.Background(), Request{Source: source, Theme: theme})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, "stability", res.Engine)
	assert.Zero(t, p1.calls)
	assert.Equal(t, []string{"image1:rate_limited", "stability:"}, obs.calls)
}
