package di

import (
	"context"
	"sync"

	"github.com/kod-kristoff/reqscope/internal/errors"
)

// Container is a dependency injection container.
//
// Services are registered once, when calling [NewContainer], with a [Key] and a [Provider].
// [Scoped] services are delegated to the Container's [RequestScope].
type Container struct {
	services     map[*serviceKey]service
	singletons   *instanceCache
	requestScope *RequestScope
	closedMu     sync.RWMutex
	closed       bool
}

var _ Scope = (*Container)(nil)

// NewContainer creates a new [Container] with the provided options.
//
// Available options:
//   - [WithService] registers a service with a provider function.
//   - [WithValue] registers a service with a value.
//   - [WithModule] applies a group of options.
//   - [WithRequestScope] sets the [RequestScope] used for [Scoped] services.
func NewContainer(opts ...ContainerOption) (*Container, error) {
	c := &Container{
		services:   make(map[*serviceKey]service),
		singletons: newInstanceCache(),
	}

	err := applyOptions(opts, func(opt ContainerOption) error {
		if opt == nil {
			return nil
		}
		return opt.applyContainer(c)
	})
	if err != nil {
		return nil, errors.Wrap(err, "di.NewContainer")
	}

	if c.requestScope == nil {
		c.requestScope = NewRequestScope()
	}

	return c, nil
}

// ContainerOption is used to configure a new [Container] when calling [NewContainer].
type ContainerOption interface {
	applyContainer(*Container) error
}

type containerOption func(*Container) error

func (o containerOption) applyContainer(c *Container) error {
	return o(c)
}

// WithService registers a service created by provider.
//
// The provider is called when the service is resolved. It receives a [Scope] it can use
// to resolve its own dependencies.
//
// By default the service is [Transient]. If the created service has a supported Close method,
// it is released when its scope ends.
//
// Available options:
//   - [Lifetime] is used to specify how services are created when resolved.
//   - [WithCloseFunc] specifies a function to be called to release the service.
//   - [IgnoreCloser] specifies that the service should not be released.
func WithService[T any](key Key[T], provider Provider[T], opts ...ServiceOption) ContainerOption {
	return containerOption(func(c *Container) error {
		if key.IsZero() {
			return errors.New("with service: key is zero")
		}

		if provider == nil {
			return errors.Errorf("with service %s: provider is nil", key)
		}

		svc := newFuncService(key, provider)
		err := applyOptions(opts, func(opt ServiceOption) error {
			return opt.applyService(svc)
		})
		if err != nil {
			return errors.Wrapf(err, "with service %s", key)
		}

		c.register(svc)
		return nil
	})
}

// WithValue registers a value as a [Singleton] service.
//
// Values are not released by default. Use [WithCloser] or [WithCloseFunc]
// to release the value when the Container is closed.
func WithValue[T any](key Key[T], val T, opts ...ServiceOption) ContainerOption {
	return containerOption(func(c *Container) error {
		if key.IsZero() {
			return errors.New("with value: key is zero")
		}

		svc := newValueService(key, val)
		err := applyOptions(opts, func(opt ServiceOption) error {
			return opt.applyService(svc)
		})
		if err != nil {
			return errors.Wrapf(err, "with value %s", key)
		}

		c.register(svc)

		// We don't need to take locks here because this is only called when creating a new Container
		if closer := svc.valueCloser(); closer != nil {
			c.singletons.releases = append(c.singletons.releases, release{key: svc.Key(), closer: closer})
		}

		return nil
	})
}

// WithRequestScope sets the [RequestScope] used to resolve [Scoped] services.
//
// By default each Container creates its own RequestScope. Use this option to share a
// RequestScope that was configured with [WithLogger] or [WithObserver].
func WithRequestScope(rs *RequestScope) ContainerOption {
	return containerOption(func(c *Container) error {
		if rs == nil {
			return errors.Wrap(errNilScope, "with request scope")
		}

		c.requestScope = rs
		return nil
	})
}

// register adds the service. The last registration for a key wins,
// and the replaced service is no longer released by the Container.
func (c *Container) register(svc service) {
	key := svc.Key()
	if _, ok := c.services[key]; ok {
		releases := c.singletons.releases[:0]
		for _, r := range c.singletons.releases {
			if r.key != key {
				releases = append(releases, r)
			}
		}
		c.singletons.releases = releases
	}

	c.services[key] = svc
}

// RequestScope returns the [RequestScope] used for [Scoped] services.
//
// The request pipeline calls [RequestScope.Enter] and [RequestScope.Exit] around each request.
func (c *Container) RequestScope() *RequestScope {
	return c.requestScope
}

// Contains returns true if the [Container] has a service registered for key.
func (c *Container) Contains(key ServiceKey) bool {
	k, err := keyOf(key)
	if err != nil {
		return false
	}

	_, ok := c.services[k]
	return ok
}

// Resolve the service registered for key.
//
// [Scoped] services must be resolved with a context returned by [RequestScope.Enter].
// This will return an error if the [Container] has been closed.
func (c *Container) Resolve(ctx context.Context, key ServiceKey) (any, error) {
	k, err := keyOf(key)
	if err != nil {
		return nil, errors.Wrap(err, "di.Container.Resolve")
	}

	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return nil, errors.Wrapf(ErrContainerClosed, "di.Container.Resolve %s", key)
	}

	val, err := c.resolveKey(ctx, k, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "di.Container.Resolve %s", key)
	}

	return val, nil
}

func (c *Container) resolveKey(ctx context.Context, key *serviceKey, trail *resolveTrail) (any, error) {
	// Check context for errors
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	svc, ok := c.services[key]
	if !ok {
		return nil, ErrServiceNotRegistered
	}

	// Throw an error if we're already resolving this service
	if trail.contains(key) {
		return nil, errors.Wrap(ErrDependencyCycle, trail.path(key))
	}
	factory := c.factory(svc, trail.push(key))

	switch svc.Lifetime() {
	case Singleton:
		// Singletons outlive the request, so they must not see the request scope
		// or be cancelled with it.
		return c.singletons.getOrCreate(context.WithoutCancel(c.requestScope.Detach(ctx)), key, factory)

	case Scoped:
		return c.requestScope.resolveOrCreate(ctx, key, factory)

	default:
		val, closer, err := factory(ctx)
		if err != nil {
			return nil, err
		}

		// Transient services created during a request are released with the request.
		// Otherwise the caller owns them.
		if closer != nil && c.requestScope.Active(ctx) {
			if err := c.requestScope.track(ctx, key, closer); err != nil {
				return nil, err
			}
		}

		return val, nil
	}
}

func (c *Container) factory(svc service, trail *resolveTrail) Factory {
	return func(ctx context.Context) (any, Closer, error) {
		val, err := svc.New(ctx, &resolver{c: c, trail: trail})
		if err != nil {
			return nil, nil, err
		}

		return val, svc.CloserFor(val), nil
	}
}

// Close the [Container] and release its [Singleton] services.
//
// Services are closed in the reverse order they were created.
// Errors returned from closing services are joined together.
//
// Close does not exit request scopes; that is done by the request pipeline.
// Close will return an error if called more than once.
func (c *Container) Close(ctx context.Context) error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return errors.Wrap(ErrContainerClosed, "di.Container.Close: closed already")
	}
	c.closed = true

	releases, _ := c.singletons.drain()
	return releaseAll(ctx, releases).Wrap("di.Container.Close")
}
