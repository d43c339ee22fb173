package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrMissingSource      = errors.New("source image missing")
	ErrMissingTheme       = errors.New("theme missing")
	ErrProvidersExhausted = errors.New("all providers failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// IsPermanent reports whether retrying the job cannot succeed because the
// underlying data is broken.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMissingSource) || errors.Is(err, ErrMissingTheme)
}
