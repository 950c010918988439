package di

import (
	"context"
	"time"
)

// ScopeObserver is notified about the lifecycle of request scopes.
//
// Methods are called synchronously from [RequestScope.Enter], [RequestScope.ResolveOrCreate],
// and [RequestScope.Exit], so implementations must be fast and safe for concurrent use.
type ScopeObserver interface {
	// ScopeEntered is called after a new request scope has been entered.
	ScopeEntered(ctx context.Context)

	// InstanceCreated is called after a new instance has been created for key.
	InstanceCreated(ctx context.Context, key ServiceKey)

	// ScopeExited is called after all instances of a request scope have been released.
	ScopeExited(ctx context.Context, stats ExitStats)
}

// ExitStats describes a request scope that has been exited.
type ExitStats struct {
	// ScopeID is the unique id of the request scope.
	ScopeID string

	// Duration is the time between Enter and Exit.
	Duration time.Duration

	// Released is the number of release hooks that were run.
	Released int

	// Failed is the number of release hooks that returned an error.
	Failed int

	// Err is the joined error returned from the release hooks, if any.
	Err error
}
