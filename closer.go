package di

import (
	"context"
	"reflect"

	"github.com/kod-kristoff/reqscope/internal/errors"
)

// Closer is used to release a service when its scope ends.
//
// [Scoped] services are released when [RequestScope.Exit] is called.
// [Singleton] services are released when [Container.Close] is called.
//
// Any of these Close method signatures are supported:
//
//	Close(context.Context) error
//	Close(context.Context)
//	Close() error
//	Close()
//
// See related options:
//   - [IgnoreCloser]
//   - [WithCloser]
//   - [WithCloseFunc]
type Closer interface {
	Close(ctx context.Context) error
}

// CloserFunc adapts a function to the [Closer] interface.
type CloserFunc func(context.Context) error

// Close calls f(ctx).
func (f CloserFunc) Close(ctx context.Context) error {
	return f(ctx)
}

// CloserFor returns a [Closer] for val if it has one of the supported Close method signatures.
// Otherwise it returns nil.
func CloserFor(val any) Closer {
	if isNil(val) {
		return nil
	}
	return getCloser(val)
}

// WithCloser is used to release a service when its scope ends.
//
// Services registered with [WithService] are released by default if they have a
// supported Close method.
// Values registered with [WithValue] are not released by default. To release a value, use this option.
func WithCloser() ServiceOption {
	return serviceOption(func(s service) error {
		s.setCloserFactory(getCloser)
		return nil
	})
}

// IgnoreCloser is used when you do not want a service with a supported Close method
// to be released by the scope.
//
// This is useful when you want to manage the lifecycle of a service outside of the scope.
func IgnoreCloser() ServiceOption {
	return serviceOption(func(s service) error {
		s.setCloserFactory(nil)
		return nil
	})
}

type closerFactory func(val any) Closer

// WithCloseFunc can be used to set a custom function to call to release a service.
//
// This is useful if a service has a method called Shutdown or Stop instead of Close.
//
// Example:
//
//	di.WithCloseFunc(func(ctx context.Context, s *http.Server) error {
//		return s.Shutdown(ctx)
//	})
//
// This option will return an error if the service type is not assignable to T.
func WithCloseFunc[T any](f func(context.Context, T) error) ServiceOption {
	return closeFuncOption[T]{f}
}

type closeFuncOption[T any] struct {
	f func(context.Context, T) error
}

func (o closeFuncOption[T]) applyService(s service) error {
	svcType := s.Key().typ
	closerType := reflect.TypeFor[T]()

	if o.f == nil {
		return errors.New("with close func: f is nil")
	}

	if !svcType.AssignableTo(closerType) {
		return errors.Errorf("with close func: service type %s is not assignable to %s",
			svcType, closerType)
	}

	s.setCloserFactory(func(val any) Closer {
		return CloserFunc(func(ctx context.Context) error {
			return o.f(ctx, val.(T))
		})
	})
	return nil
}

// getCloser returns the Closer interface if the given value implements it,
// or any of the compatible Close function signatures.
func getCloser(val any) Closer {
	switch c := val.(type) {
	case Closer:
		return c
	case closerWithContextNoError:
		return closerWithContextNoErrorWrapper{c}
	case closerNoContextWithError:
		return closerNoContextWithErrorWrapper{c}
	case closerNoContextNoError:
		return closerNoContextNoErrorWrapper{c}

	default:
		return nil
	}
}

type closerWithContextNoError interface {
	Close(ctx context.Context)
}

type closerNoContextWithError interface {
	Close() error
}

type closerNoContextNoError interface {
	Close()
}

type closerNoContextNoErrorWrapper struct {
	c closerNoContextNoError
}

func (w closerNoContextNoErrorWrapper) Close(context.Context) error {
	w.c.Close()
	return nil
}

type closerWithContextNoErrorWrapper struct {
	c closerWithContextNoError
}

func (w closerWithContextNoErrorWrapper) Close(ctx context.Context) error {
	w.c.Close(ctx)
	return nil
}

type closerNoContextWithErrorWrapper struct {
	c closerNoContextWithError
}

func (w closerNoContextWithErrorWrapper) Close(context.Context) error {
	return w.c.Close()
}
