package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []fakeTimer
	registered chan time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, registered: make(chan time.Duration, 16)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	ch := make(chan time.Time, 1)
	c.timers = append(c.timers, fakeTimer{deadline: c.now.Add(d), ch: ch})
	c.mu.Unlock()
	c.registered <- d
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, t := range c.timers {
		if !c.now.Before(t.deadline) {
			t.ch <- c.now
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseSpec(t *testing.T) {
	cases := []struct {
		raw  string
		want Spec
		bad  bool
	}{
		{raw: "5/1m", want: Spec{Limit: 5, Window: time.Minute}},
		{raw: "500/m", want: Spec{Limit: 500, Window: time.Minute}},
		{raw: " 150 / 10s ", want: Spec{Limit: 150, Window: 10 * time.Second}},
		{raw: "5", bad: true},
		{raw: "0/1m", bad: true},
		{raw: "x/1m", bad: true},
		{raw: "5/soon", bad: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseSpec(tc.raw)
			if tc.bad {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWindowAllowRejectsSixthInWindow(t *testing.T) {
	clock := newFakeClock(epoch)
	w := NewWindowWithClock(Spec{Limit: 5, Window: time.Minute}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, w.Allow(ctx), "acquisition %d", i+1)
	}
	assert.False(t, w.Allow(ctx))

	clock.Advance(59 * time.Second)
	assert.False(t, w.Allow(ctx))

	clock.Advance(time.Second)
	assert.True(t, w.Allow(ctx))
}

func TestWindowWaitBlocksUntilRollover(t *testing.T) {
	clock := newFakeClock(epoch)
	w := NewWindowWithClock(Spec{Limit: 5, Window: time.Minute}, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Wait(ctx))
	}

	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx) }()

	select {
	case d := <-clock.registered:
		assert.Equal(t, time.Minute, d)
	case <-time.After(time.Second):
		t.Fatal("sixth Wait did not block on the clock")
	}
	select {
	case <-done:
		t.Fatal("sixth Wait returned before rollover")
	default:
	}

	clock.Advance(time.Minute)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sixth Wait did not resume after rollover")
	}
	assert.Equal(t, epoch.Add(time.Minute), clock.Now())
}

func TestWindowWaitHonorsCancellation(t *testing.T) {
	clock := newFakeClock(epoch)
	w := NewWindowWithClock(Spec{Limit: 1, Window: time.Hour}, clock)
	require.NoError(t, w.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx) }()
	<-clock.registered
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait ignored cancellation")
	}
}

func TestWindowConcurrentAllowNeverExceedsLimit(t *testing.T) {
	w := NewWindowWithClock(Spec{Limit: 25, Window: time.Hour}, newFakeClock(epoch))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow(context.Background()) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, granted)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisWindowSharesBudget(t *testing.T) {
	rdb := newRedis(t)
	clock := newFakeClock(epoch)
	spec := Spec{Limit: 5, Window: time.Minute}
	a := NewRedisWindow(rdb, "image1", spec, zerolog.Nop()).WithClock(clock)
	b := NewRedisWindow(rdb, "image1", spec, zerolog.Nop()).WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, a.Allow(ctx))
	}
	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow(ctx))
	}
	assert.False(t, a.Allow(ctx))
	assert.False(t, b.Allow(ctx))

	other := NewRedisWindow(rdb, "stability", spec, zerolog.Nop()).WithClock(clock)
	assert.True(t, other.Allow(ctx))

	clock.Advance(time.Minute)
	assert.True(t, a.Allow(ctx))
}

func TestRedisWindowWaitBlocksUntilBoundary(t *testing.T) {
	rdb := newRedis(t)
	clock := newFakeClock(epoch.Add(20 * time.Second))
	w := NewRedisWindow(rdb, "image1", Spec{Limit: 5, Window: time.Minute}, zerolog.Nop()).WithClock(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Wait(ctx))
	}

	done := make(chan error, 1)
	go func() { done <- w.Wait(ctx) }()
	select {
	case d := <-clock.registered:
		assert.Equal(t, 40*time.Second, d)
	case <-time.After(time.Second):
		t.Fatal("sixth Wait did not block")
	}

	clock.Advance(40 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sixth Wait did not resume at the boundary")
	}
}

func TestRedisWindowAllowRejectsWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	w := NewRedisWindow(rdb, "openai", Spec{Limit: 5, Window: time.Minute}, zerolog.Nop())
	assert.False(t, w.Allow(context.Background()))
	assert.Error(t, w.Wait(context.Background()))
}

func TestSet(t *testing.T) {
	set, err := NewSet(map[string]string{"image1": "5/1m", "pollinations": ""}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, ok := set.Get("image1").(*Window)
	assert.True(t, ok)
	assert.IsType(t, Unlimited{}, set.Get("pollinations"))
	assert.IsType(t, Unlimited{}, set.Get("unknown"))
	assert.Equal(t, []string{"image1", "pollinations"}, set.Names())

	spec, ok := set.Spec("image1")
	assert.True(t, ok)
	assert.Equal(t, Spec{Limit: 5, Window: time.Minute}, spec)
	_, ok = set.Spec("pollinations")
	assert.False(t, ok)

	_, err = NewSet(map[string]string{"image1": "five"}, nil, zerolog.Nop())
	assert.Error(t, err)

	shared, err := NewSet(map[string]string{"image1": "5/1m"}, newRedis(t), zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &RedisWindow{}, shared.Get("image1"))
}
