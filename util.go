package di

import (
	"reflect"

	"github.com/kod-kristoff/reqscope/internal/errors"
)

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// Apply functional options and join any errors together.
func applyOptions[O any](opts []O, f func(O) error) error {
	var errs errors.MultiError

	for _, o := range opts {
		errs = errs.Append(f(o))
	}

	return errs.Join()
}
