package di

import (
	"context"
)

// Provider creates a service of type T.
//
// The [Scope] can be used to resolve dependencies. The ctx carries the request scope
// when the service is [Scoped] or [Transient] and resolved during a request.
type Provider[T any] func(ctx context.Context, s Scope) (T, error)

// ServiceOption can be used when calling [WithService] or [WithValue].
//
// Available options:
//   - [Lifetime] specifies how services are created when resolved.
//   - [WithCloseFunc] specifies a function to be called to release the service.
//   - [IgnoreCloser] specifies that the service should not be released by its scope.
//   - [WithCloser] specifies that the service should be released by its scope if it has a
//     supported Close method. This is the default for [WithService].
type ServiceOption interface {
	applyService(s service) error
}

type serviceOption func(service) error

func (o serviceOption) applyService(s service) error {
	return o(s)
}

// service provides information about a service and how to create it.
type service interface {
	// Key returns the key the service is registered with.
	Key() *serviceKey

	// Lifetime returns the lifetime of the service.
	Lifetime() Lifetime
	setLifetime(Lifetime)

	// New creates a new instance of the service.
	New(ctx context.Context, s Scope) (any, error)

	// CloserFor returns a Closer for an instance created by New.
	CloserFor(val any) Closer
	setCloserFactory(closerFactory)
}

type funcService[T any] struct {
	key           *serviceKey
	provider      Provider[T]
	lifetime      Lifetime
	closerFactory closerFactory
}

func newFuncService[T any](key Key[T], provider Provider[T]) *funcService[T] {
	return &funcService[T]{
		key:           key.serviceKey(),
		provider:      provider,
		closerFactory: getCloser,
	}
}

func (s *funcService[T]) Key() *serviceKey {
	return s.key
}

func (s *funcService[T]) Lifetime() Lifetime {
	return s.lifetime
}

func (s *funcService[T]) setLifetime(l Lifetime) {
	s.lifetime = l
}

func (s *funcService[T]) New(ctx context.Context, sc Scope) (any, error) {
	val, err := s.provider(ctx, sc)
	if err != nil {
		return nil, err
	}

	return val, nil
}

func (s *funcService[T]) CloserFor(val any) Closer {
	if isNil(val) || s.closerFactory == nil {
		return nil
	}

	return s.closerFactory(val)
}

func (s *funcService[T]) setCloserFactory(cf closerFactory) {
	s.closerFactory = cf
}

var _ service = (*funcService[any])(nil)

type valueService[T any] struct {
	key           *serviceKey
	val           T
	closerFactory closerFactory
}

func newValueService[T any](key Key[T], val T) *valueService[T] {
	return &valueService[T]{
		key: key.serviceKey(),
		val: val,
	}
}

func (s *valueService[T]) Key() *serviceKey {
	return s.key
}

func (*valueService[T]) Lifetime() Lifetime {
	return Singleton
}

func (*valueService[T]) setLifetime(Lifetime) {
	// Values are always singletons.
}

func (s *valueService[T]) New(context.Context, Scope) (any, error) {
	return s.val, nil
}

// CloserFor returns nil because values are released through valueCloser.
func (*valueService[T]) CloserFor(any) Closer {
	return nil
}

// valueCloser returns the Closer for the value, if it should be released with the Container.
// The container is not responsible for closing values by default.
func (s *valueService[T]) valueCloser() Closer {
	if isNil(s.val) || s.closerFactory == nil {
		return nil
	}

	return s.closerFactory(s.val)
}

func (s *valueService[T]) setCloserFactory(cf closerFactory) {
	s.closerFactory = cf
}

var _ service = (*valueService[any])(nil)
