package di

import (
	"context"
	"sync"

	"github.com/kod-kristoff/reqscope/internal/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Factory creates a new instance for [RequestScope.ResolveOrCreate].
//
// It returns the instance and an optional [Closer] used to release it when the scope ends.
type Factory func(ctx context.Context) (val any, closer Closer, err error)

// instanceCache memoizes at most one instance per key and keeps track of
// how to release them.
//
// It is safe for concurrent use. Each key is created at most once; concurrent callers
// for the same key wait for the first one and share its result.
type instanceCache struct {
	entries *xsync.MapOf[*serviceKey, *cacheEntry]

	mu       sync.Mutex
	releases []release
	closed   bool
}

type cacheEntry struct {
	result func() (any, error)
}

type release struct {
	key    *serviceKey
	closer Closer
}

func (r release) run(ctx context.Context) error {
	return errors.Wrapf(r.closer.Close(ctx), "close %s", r.key)
}

func newInstanceCache() *instanceCache {
	return &instanceCache{
		entries: xsync.NewMapOf[*serviceKey, *cacheEntry](),
	}
}

func (c *instanceCache) getOrCreate(ctx context.Context, key *serviceKey, factory Factory) (any, error) {
	e, _ := c.entries.LoadOrCompute(key, func() *cacheEntry {
		return &cacheEntry{
			result: sync.OnceValues(func() (any, error) {
				val, closer, err := factory(ctx)
				if err != nil {
					return nil, err
				}

				if closer != nil {
					if err := c.track(ctx, key, closer); err != nil {
						return nil, err
					}
				}

				return val, nil
			}),
		}
	})

	return e.result()
}

// track adds a release hook. If the cache was already closed, the closer is run
// right away and an error is returned.
func (c *instanceCache) track(ctx context.Context, key *serviceKey, closer Closer) error {
	c.mu.Lock()
	if !c.closed {
		c.releases = append(c.releases, release{key: key, closer: closer})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	r := release{key: key, closer: closer}
	return errors.Join(errClosed, r.run(ctx))
}

func (c *instanceCache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// drain closes the cache and returns the release hooks in the order they were added.
// It returns false if the cache was closed already.
func (c *instanceCache) drain() ([]release, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	c.closed = true

	releases := c.releases
	c.releases = nil
	c.entries.Clear()

	return releases, true
}

// releaseAll runs the release hooks in LIFO order.
// Every hook is run even if an earlier one fails. One error is returned per failed hook.
func releaseAll(ctx context.Context, releases []release) errors.MultiError {
	var errs errors.MultiError
	for i := len(releases) - 1; i >= 0; i-- {
		errs = errs.Append(releases[i].run(ctx))
	}

	return errs
}
