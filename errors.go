package di

import (
	"github.com/kod-kristoff/reqscope/internal/errors"
)

var (
	// ErrOutsideRequestScope is returned when a [Scoped] service is resolved from a context
	// that is not inside an entered request scope.
	//
	// This is a wiring error: a service was registered as [Scoped] but used from code that
	// runs outside request handling, for example at startup or from a [Singleton].
	ErrOutsideRequestScope = errors.New("request scoped, but no request scope entered")

	// ErrScopeReentered is the panic value used when [RequestScope.Enter] is called
	// on a context that is already inside an active request scope.
	ErrScopeReentered = errors.New("request scope already entered")

	// ErrScopeNotActive is returned when [RequestScope.Exit] is called on a context
	// without an active request scope.
	ErrScopeNotActive = errors.New("request scope not active")

	// ErrServiceNotRegistered is returned when resolving a key that has no registration.
	ErrServiceNotRegistered = errors.New("service not registered")

	// ErrDependencyCycle is returned when a provider depends on itself, directly or indirectly.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrContainerClosed is returned when using a [Container] after it has been closed.
	ErrContainerClosed = errors.New("container closed")

	errNilKey   = errors.New("key is nil")
	errClosed   = errors.New("instance cache closed")
	errNilScope = errors.New("request scope is nil")
)
