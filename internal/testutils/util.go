package testutils

import (
	"sync"
	"testing"
)

// LogError is a test helper function to log an error message if it is not nil.
//
// This is to help make sure our error messages are helpful and informative.
func LogError(t *testing.T, err error) {
	if err == nil {
		return
	}

	t.Helper()
	t.Logf("error message:\n%v", err)
}

// RunParallel runs a function in parallel with the given concurrency.
func RunParallel(concurrency int, f func(int)) {
	wg := sync.WaitGroup{}
	wg.Add(concurrency)

	for i := range concurrency {
		go func() {
			defer wg.Done()
			f(i)
		}()
	}

	wg.Wait()
}

// CollectChannel collects all values from a channel and returns them in a slice.
func CollectChannel[V any](ch <-chan V) []V {
	//nolint:prealloc // No way of knowing the number of values in the channel
	var values []V
	for v := range ch {
		values = append(values, v)
	}

	return values
}

// Recover runs f and returns the value it panicked with, or nil.
func Recover(f func()) (v any) {
	defer func() {
		v = recover()
	}()

	f()
	return nil
}
