package query

import (
	"context"
	"errors"
	"time"

	apperrors "second-brain/internal/errors"
)

// RetryPolicy decides whether a fetch that has failed failures times is
// attempted again.
type RetryPolicy func(failures int, err error) bool

type Options struct {
	// StaleTime is how long fetched data is served without refetching.
	StaleTime time.Duration
	// GCTime is how long an unobserved entry survives after its last use.
	GCTime     time.Duration
	Retry      RetryPolicy
	RetryDelay func(failures int) time.Duration
	// Enabled gates the fetch. Nil means always enabled.
	Enabled func() bool
}

// DefaultRetry retries transient failures up to max times. Errors the user
// has to act on are never retried.
func DefaultRetry(max int) RetryPolicy {
	return func(failures int, err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		switch apperrors.KindOf(err) {
		case apperrors.KindAuth, apperrors.KindForbidden, apperrors.KindValidation,
			apperrors.KindNotFound, apperrors.KindConflict:
			return false
		}
		return failures <= max
	}
}

// NoRetry never retries.
func NoRetry(int, error) bool { return false }

// DefaultRetryDelay backs off exponentially from one second, capped at 30s.
func DefaultRetryDelay(failures int) time.Duration {
	d := time.Second << max(failures-1, 0)
	if d <= 0 || d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func (o Options) merge(defaults Options) Options {
	if o.StaleTime == 0 {
		o.StaleTime = defaults.StaleTime
	}
	if o.GCTime == 0 {
		o.GCTime = defaults.GCTime
	}
	if o.Retry == nil {
		o.Retry = defaults.Retry
	}
	if o.Retry == nil {
		o.Retry = NoRetry
	}
	if o.RetryDelay == nil {
		o.RetryDelay = defaults.RetryDelay
	}
	if o.RetryDelay == nil {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Enabled == nil {
		o.Enabled = defaults.Enabled
	}
	return o
}

func (o Options) enabled() bool {
	return o.Enabled == nil || o.Enabled()
}
