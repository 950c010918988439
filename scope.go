package di

import (
	"context"
	"strings"

	"github.com/kod-kristoff/reqscope/internal/errors"
)

// Scope allows you to resolve services.
//
// Scope is implemented by *Container. A Scope is also passed to each [Provider]
// to resolve the dependencies of the service being created.
type Scope interface {
	// Contains returns true if the Scope has a service registered for key.
	Contains(key ServiceKey) bool

	// Resolve returns the service registered for key.
	Resolve(ctx context.Context, key ServiceKey) (any, error)
}

// Resolve a service from the [Scope].
func Resolve[T any](ctx context.Context, s Scope, key Key[T]) (T, error) {
	var val T
	anyVal, err := s.Resolve(ctx, key)
	if v, ok := anyVal.(T); ok {
		val = v
	}

	return val, err
}

// MustResolve resolves a service from the [Scope].
//
// If the service cannot be resolved, this function will panic.
func MustResolve[T any](ctx context.Context, s Scope, key Key[T]) T {
	val, err := Resolve(ctx, s, key)
	if err != nil {
		panic(err)
	}
	return val
}

// resolver is the Scope passed to a Provider.
// It carries the chain of services being created so it can detect dependency cycles.
type resolver struct {
	c     *Container
	trail *resolveTrail
}

func (r *resolver) Contains(key ServiceKey) bool {
	return r.c.Contains(key)
}

func (r *resolver) Resolve(ctx context.Context, key ServiceKey) (any, error) {
	k, err := keyOf(key)
	if err != nil {
		return nil, errors.Wrap(err, "dependency")
	}

	val, err := r.c.resolveKey(ctx, k, r.trail)
	if err != nil {
		return nil, errors.Wrapf(err, "dependency %s", key)
	}

	return val, nil
}

var _ Scope = (*resolver)(nil)

// resolveTrail is an immutable list of the services being resolved, innermost first.
// It is safe to share between goroutines started by a Provider.
type resolveTrail struct {
	key    *serviceKey
	parent *resolveTrail
}

func (t *resolveTrail) contains(key *serviceKey) bool {
	for n := t; n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}

func (t *resolveTrail) push(key *serviceKey) *resolveTrail {
	return &resolveTrail{key: key, parent: t}
}

// path returns the dependency chain ending in key, e.g. "a -> b -> a".
func (t *resolveTrail) path(key *serviceKey) string {
	keys := []string{key.String()}
	for n := t; n != nil; n = n.parent {
		keys = append(keys, n.key.String())
	}

	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}

	return strings.Join(keys, " -> ")
}
