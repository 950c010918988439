// Package dicontext provides request-local storage carried on a [context.Context].
//
// A value set on a context is visible to everything that runs with that context or a
// context derived from it, including other goroutines. Requests that derive their own
// contexts never observe each other's values.
package dicontext

import (
	"context"
)

type localKey struct {
	name string
}

// Local is a typed slot stored on a [context.Context].
//
// Each call to [NewLocal] creates a distinct slot, even if the names are equal.
type Local[T any] struct {
	key      *localKey
	sentinel T
}

// NewLocal creates a new slot. Get returns sentinel on contexts where the slot is unset.
func NewLocal[T any](name string, sentinel T) *Local[T] {
	return &Local[T]{
		key:      &localKey{name: name},
		sentinel: sentinel,
	}
}

// Get returns the value visible on ctx, or the sentinel if none was set.
func (l *Local[T]) Get(ctx context.Context) T {
	if v, ok := ctx.Value(l.key).(T); ok {
		return v
	}
	return l.sentinel
}

// Set returns a new [context.Context] on which the slot holds v.
// The parent context is not modified.
func (l *Local[T]) Set(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, l.key, v)
}

// IsSet returns true if the slot was set on ctx or one of its parents.
func (l *Local[T]) IsSet(ctx context.Context) bool {
	_, ok := ctx.Value(l.key).(T)
	return ok
}

func (l *Local[T]) String() string {
	return l.key.name
}
