package query

import (
	"context"

	apperrors "second-brain/internal/errors"
	"second-brain/internal/notify"
)

// Mutation describes a write. OnMutate applies an optimistic cache update
// and returns the function that undoes it.
type Mutation[V, R any] struct {
	Name     string
	Fn       func(ctx context.Context, vars V) (R, error)
	OnMutate func(vars V) (rollback func())
	// OnSuccess runs before invalidation, typically to write the result
	// into the cache.
	OnSuccess   func(result R, vars V)
	Invalidates func(vars V, result R) []Key
	// SuccessMessage is shown after the write succeeds. Empty means silent.
	SuccessMessage string
	// ErrorMessage overrides the classified error text.
	ErrorMessage func(err error) string
	// Silent suppresses the error notification.
	Silent bool
}

// Mutate runs m. On failure the optimistic update is rolled back and a
// classified error notification is sent; on success the listed keys are
// invalidated.
func Mutate[V, R any](ctx context.Context, c *Cache, m Mutation[V, R], vars V) (R, error) {
	c.beginMutation(m.Name)
	defer c.endMutation(m.Name)

	var rollback func()
	if m.OnMutate != nil {
		rollback = m.OnMutate(vars)
	}

	result, err := m.Fn(ctx, vars)
	if err != nil {
		if rollback != nil {
			rollback()
		}
		if !m.Silent {
			msg := apperrors.UserMessage(err)
			if m.ErrorMessage != nil {
				msg = m.ErrorMessage(err)
			}
			notify.Error(c.notifier, msg)
		}
		c.log.Debug().Err(err).Str("mutation", m.Name).Msg("mutation failed")
		return result, err
	}

	if m.OnSuccess != nil {
		m.OnSuccess(result, vars)
	}
	if m.Invalidates != nil {
		for _, key := range m.Invalidates(vars, result) {
			c.Invalidate(ctx, key)
		}
	}
	notify.Success(c.notifier, m.SuccessMessage)
	return result, nil
}

// IsMutating reports whether a mutation with the given name is in flight.
func (c *Cache) IsMutating(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutating[name] > 0
}

func (c *Cache) beginMutation(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutating[name]++
}

func (c *Cache) endMutation(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mutating[name]--; c.mutating[name] <= 0 {
		delete(c.mutating, name)
	}
}
