package ratelimit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Set holds one limiter per provider name.
type Set struct {
	limiters map[string]Limiter
	specs    map[string]Spec
}

// NewSet builds limiters from name → "R/W" specs. An empty spec means
// unlimited. With a non-nil Redis client every limiter is shared.
func NewSet(specs map[string]string, rdb *redis.Client, logger zerolog.Logger) (*Set, error) {
	s := &Set{limiters: make(map[string]Limiter, len(specs)), specs: make(map[string]Spec, len(specs))}
	for name, raw := range specs {
		if strings.TrimSpace(raw) == "" {
			s.limiters[name] = Unlimited{}
			continue
		}
		spec, err := ParseSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		s.specs[name] = spec
		if rdb != nil {
			s.limiters[name] = NewRedisWindow(rdb, name, spec, logger)
		} else {
			s.limiters[name] = NewWindow(spec)
		}
		logger.Info().Str("provider", name).Str("limit", spec.String()).Bool("shared", rdb != nil).Msg("ratelimit: configured")
	}
	return s, nil
}

// Get returns the provider's limiter, or Unlimited when none was configured.
func (s *Set) Get(name string) Limiter {
	if s == nil {
		return Unlimited{}
	}
	if l, ok := s.limiters[name]; ok {
		return l
	}
	return Unlimited{}
}

// Spec returns the parsed limit for name; false when it runs unlimited.
func (s *Set) Spec(name string) (Spec, bool) {
	if s == nil {
		return Spec{}, false
	}
	spec, ok := s.specs[name]
	return spec, ok
}

// Names lists configured providers in sorted order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.limiters))
	for name := range s.limiters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
