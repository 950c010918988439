package di

import (
	"fmt"
	"reflect"
)

// ServiceKey identifies a service registration. It is implemented by [Key].
type ServiceKey interface {
	fmt.Stringer
	serviceKey() *serviceKey
}

// Key is a strongly-typed identity for a service of type T.
//
// Keys are compared by identity, not by name: two keys created with the same name
// are different keys.
//
// Example:
//
//	var DBKey = di.NewKey[*store.Store]("db")
type Key[T any] struct {
	k *serviceKey
}

// NewKey creates a new [Key] for a service of type T.
//
// The name is used in error and log messages. If it is empty the type of T is used instead.
func NewKey[T any](name string) Key[T] {
	return Key[T]{
		k: &serviceKey{
			name: name,
			typ:  reflect.TypeFor[T](),
		},
	}
}

// IsZero returns true if the key was not created with [NewKey].
func (k Key[T]) IsZero() bool {
	return k.k == nil
}

func (k Key[T]) String() string {
	if k.k == nil {
		return "<zero key>"
	}
	return k.k.String()
}

func (k Key[T]) serviceKey() *serviceKey {
	return k.k
}

var _ ServiceKey = Key[any]{}

type serviceKey struct {
	name string
	typ  reflect.Type
}

func (k *serviceKey) String() string {
	if k.name == "" {
		return k.typ.String()
	}
	return k.name
}

func (k *serviceKey) serviceKey() *serviceKey {
	return k
}

func keyOf(key ServiceKey) (*serviceKey, error) {
	if key == nil {
		return nil, errNilKey
	}

	k := key.serviceKey()
	if k == nil {
		return nil, errNilKey
	}

	return k, nil
}
