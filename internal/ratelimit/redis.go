package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisWindow shares one fixed-window budget across every worker process
// pointing at the same Redis. Windows are aligned to multiples of W so all
// processes agree on boundaries; each window gets its own counter key.
type RedisWindow struct {
	rdb    *redis.Client
	key    string
	spec   Spec
	clock  Clock
	logger zerolog.Logger
}

func NewRedisWindow(rdb *redis.Client, name string, spec Spec, logger zerolog.Logger) *RedisWindow {
	return &RedisWindow{
		rdb:    rdb,
		key:    "ratelimit:" + name,
		spec:   spec,
		clock:  realClock{},
		logger: logger,
	}
}

// WithClock swaps the clock, for tests.
func (r *RedisWindow) WithClock(c Clock) *RedisWindow {
	r.clock = c
	return r
}

// take increments the current window's counter. A Redis failure is returned
// so callers can decide; Allow treats it as a rejection.
func (r *RedisWindow) take(ctx context.Context) (bool, time.Duration, error) {
	now := r.clock.Now()
	width := r.spec.Window.Milliseconds()
	if width <= 0 {
		width = 1
	}
	index := now.UnixMilli() / width
	key := r.key + ":" + strconv.FormatInt(index, 10)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, r.spec.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", r.key, err)
	}
	if incr.Val() <= int64(r.spec.Limit) {
		return true, 0, nil
	}
	next := time.UnixMilli((index + 1) * width)
	return false, next.Sub(now), nil
}

func (r *RedisWindow) Allow(ctx context.Context) bool {
	ok, _, err := r.take(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("ratelimit: redis unavailable, rejecting")
		return false
	}
	return ok
}

func (r *RedisWindow) Wait(ctx context.Context) error {
	for {
		ok, delay, err := r.take(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(delay):
		}
	}
}

var _ Limiter = (*RedisWindow)(nil)
