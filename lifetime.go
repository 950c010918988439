package di

import (
	"fmt"

	"github.com/kod-kristoff/reqscope/internal/errors"
)

// Lifetime specifies how services are created when resolved.
//
// Available lifetimes:
//   - [Transient] specifies that a service is created each time it is resolved.
//   - [Singleton] specifies that a service is created once per [Container].
//   - [Scoped] specifies that a service is created once per request scope.
type Lifetime uint8

const (
	// Transient specifies that a service is created each time it is resolved.
	//
	// This is the default lifetime for services registered with [WithService].
	Transient Lifetime = iota

	// Singleton specifies that a service is created once and subsequent requests to resolve
	// return the same instance.
	//
	// Singletons are created with the request scope detached from the context,
	// so they cannot depend on [Scoped] services.
	Singleton

	// Scoped specifies that a service is created once per request scope.
	//
	// Scoped services can only be resolved with a context returned by [RequestScope.Enter].
	// They are released when [RequestScope.Exit] is called.
	Scoped
)

// WithLifetime is used to configure the lifetime of a service when calling [WithService].
//
// Example:
//
//	c, err := di.NewContainer(
//		di.WithService(DBKey, OpenDB, di.WithLifetime(di.Scoped)),
//		// Lifetime can also be used directly as an option
//		di.WithService(DBKey, OpenDB, di.Scoped),
//	)
func WithLifetime(lifetime Lifetime) ServiceOption {
	return lifetime
}

func (l Lifetime) applyService(s service) error {
	if l > Scoped {
		return errors.Errorf("with lifetime: invalid lifetime %d", l)
	}

	s.setLifetime(l)
	return nil
}

var _ ServiceOption = Transient

func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "Transient"
	case Singleton:
		return "Singleton"
	case Scoped:
		return "Scoped"
	default:
		return fmt.Sprintf("Unknown Lifetime %d", l)
	}
}
