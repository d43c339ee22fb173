// Package ratelimit provides per-provider fixed-window limiters: at most R
// acquisitions in each window of length W.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter guards calls to one upstream provider.
type Limiter interface {
	// Wait blocks until a slot is available in the current or a later window.
	Wait(ctx context.Context) error
	// Allow takes a slot if one is free right now and never blocks.
	Allow(ctx context.Context) bool
}

// Spec is a parsed "R/W" limit such as "5/1m".
type Spec struct {
	Limit  int
	Window time.Duration
}

func (s Spec) String() string {
	return fmt.Sprintf("%d/%s", s.Limit, s.Window)
}

// ParseSpec parses "R/W". W accepts Go durations and the bare units s, m and h
// meaning one of that unit.
func ParseSpec(raw string) (Spec, error) {
	raw = strings.TrimSpace(raw)
	count, window, ok := strings.Cut(raw, "/")
	if !ok {
		return Spec{}, fmt.Errorf("rate limit %q: want R/W", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Spec{}, fmt.Errorf("rate limit %q: count must be a positive integer", raw)
	}
	window = strings.TrimSpace(window)
	switch window {
	case "s", "m", "h":
		window = "1" + window
	}
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		return Spec{}, fmt.Errorf("rate limit %q: invalid window", raw)
	}
	return Spec{Limit: n, Window: d}, nil
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type bucket struct {
	count int
	until time.Time
}

// Window is an in-process fixed-window limiter. The first acquisition opens a
// window; the budget resets once that window has elapsed.
type Window struct {
	spec  Spec
	clock Clock

	mu sync.Mutex
	b  bucket
}

// NewWindow builds a limiter from spec.
func NewWindow(spec Spec) *Window {
	return NewWindowWithClock(spec, realClock{})
}

func NewWindowWithClock(spec Spec, clock Clock) *Window {
	return &Window{spec: spec, clock: clock}
}

// take claims a slot or reports how long until the window rolls over.
func (w *Window) take() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	if w.b.until.IsZero() || !now.Before(w.b.until) {
		w.b = bucket{count: 0, until: now.Add(w.spec.Window)}
	}
	if w.b.count >= w.spec.Limit {
		return false, w.b.until.Sub(now)
	}
	w.b.count++
	return true, 0
}

func (w *Window) Allow(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	ok, _ := w.take()
	return ok
}

func (w *Window) Wait(ctx context.Context) error {
	for {
		ok, delay := w.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(delay):
		}
	}
}

// Unlimited never rejects. Used when a provider has no configured limit.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Allow(ctx context.Context) bool { return ctx.Err() == nil }

var (
	_ Limiter = (*Window)(nil)
	_ Limiter = Unlimited{}
)
