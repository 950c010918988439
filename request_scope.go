package di

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kod-kristoff/reqscope/dicontext"
	"github.com/kod-kristoff/reqscope/internal/errors"
)

// RequestScope binds instances to the lifetime of one request.
//
// [RequestScope.Enter] installs an empty registry on the request's [context.Context].
// [RequestScope.ResolveOrCreate] memoizes at most one instance per key in that registry.
// [RequestScope.Exit] releases every memoized instance and deactivates the registry.
//
// The registry lives on the context, so concurrent requests never share instances.
// A RequestScope itself holds no per-request state and is safe for concurrent use.
type RequestScope struct {
	local    *dicontext.Local[*registry]
	logger   *slog.Logger
	observer ScopeObserver
}

type registry struct {
	*instanceCache
	id      string
	started time.Time
}

// NewRequestScope creates a new [RequestScope].
//
// Available options:
//   - [WithLogger] sets the logger used for scope lifecycle messages.
//   - [WithObserver] sets a [ScopeObserver].
func NewRequestScope(opts ...RequestScopeOption) *RequestScope {
	s := &RequestScope{
		local: dicontext.NewLocal[*registry]("di.RequestScope", nil),
	}
	for _, opt := range opts {
		opt.applyRequestScope(s)
	}

	return s
}

// RequestScopeOption is used to configure a [RequestScope] when calling [NewRequestScope].
type RequestScopeOption interface {
	applyRequestScope(*RequestScope)
}

type requestScopeOption func(*RequestScope)

func (o requestScopeOption) applyRequestScope(s *RequestScope) {
	o(s)
}

// WithLogger sets the logger used by the [RequestScope].
//
// Scope entry and exit are logged at debug level. By default [slog.Default] is used.
func WithLogger(logger *slog.Logger) RequestScopeOption {
	return requestScopeOption(func(s *RequestScope) {
		s.logger = logger
	})
}

// WithObserver sets a [ScopeObserver] to be notified about scope lifecycle events.
func WithObserver(o ScopeObserver) RequestScopeOption {
	return requestScopeOption(func(s *RequestScope) {
		s.observer = o
	})
}

func (s *RequestScope) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// current returns the active registry on ctx, or nil.
func (s *RequestScope) current(ctx context.Context) *registry {
	reg := s.local.Get(ctx)
	if reg == nil || reg.isClosed() {
		return nil
	}
	return reg
}

// Enter starts a new request scope and returns a [context.Context] that carries it.
//
// The returned context, and contexts derived from it, must be used when resolving
// [Scoped] services for this request.
//
// Enter panics with an error wrapping [ErrScopeReentered] if ctx is already inside an
// active request scope. That means the request pipeline is nesting scopes or missing a call
// to [RequestScope.Exit].
func (s *RequestScope) Enter(ctx context.Context) context.Context {
	if reg := s.current(ctx); reg != nil {
		panic(errors.Wrap(ErrScopeReentered, "di.RequestScope.Enter"))
	}

	reg := &registry{
		instanceCache: newInstanceCache(),
		id:            uuid.NewString(),
		started:       time.Now(),
	}
	ctx = s.local.Set(ctx, reg)

	s.log().DebugContext(ctx, "entering request scope", "scope", reg.id)
	if s.observer != nil {
		s.observer.ScopeEntered(ctx)
	}

	return ctx
}

// Exit ends the request scope carried by ctx.
//
// Every instance created in the scope is released exactly once, in the reverse order of creation.
// If a release fails, the remaining instances are still released and all errors are joined together.
// Afterwards, ctx is no longer inside a request scope.
//
// Exit returns an error wrapping [ErrScopeNotActive] if ctx is not inside an active request scope.
func (s *RequestScope) Exit(ctx context.Context) error {
	reg := s.local.Get(ctx)
	if reg == nil {
		return errors.Wrap(ErrScopeNotActive, "di.RequestScope.Exit")
	}

	releases, ok := reg.drain()
	if !ok {
		return errors.Wrap(ErrScopeNotActive, "di.RequestScope.Exit")
	}

	errs := releaseAll(ctx, releases)
	err := errs.Wrap("di.RequestScope.Exit")

	s.log().DebugContext(ctx, "exiting request scope",
		"scope", reg.id,
		"released", len(releases),
		"failed", len(errs),
	)
	if s.observer != nil {
		s.observer.ScopeExited(ctx, ExitStats{
			ScopeID:  reg.id,
			Duration: time.Since(reg.started),
			Released: len(releases),
			Failed:   len(errs),
			Err:      err,
		})
	}

	return err
}

// Active returns true if ctx is inside an active request scope.
func (s *RequestScope) Active(ctx context.Context) bool {
	return s.current(ctx) != nil
}

// ScopeID returns the unique id of the active request scope on ctx, or an empty string.
func (s *RequestScope) ScopeID(ctx context.Context) string {
	if reg := s.current(ctx); reg != nil {
		return reg.id
	}
	return ""
}

// Detach returns a [context.Context] that is not inside any request scope.
// Values and cancellation of ctx are kept.
func (s *RequestScope) Detach(ctx context.Context) context.Context {
	if !s.local.IsSet(ctx) {
		return ctx
	}
	return s.local.Set(ctx, nil)
}

// ResolveOrCreate returns the instance memoized for key in the request scope on ctx.
//
// If there is no instance yet, factory is called to create one. The instance is memoized
// for the rest of the request and its [Closer], if any, is run by [RequestScope.Exit].
// If factory returns an error, the error is memoized instead.
//
// ResolveOrCreate returns an error wrapping [ErrOutsideRequestScope] if ctx is not
// inside an active request scope. Nothing is created in that case.
func (s *RequestScope) ResolveOrCreate(ctx context.Context, key ServiceKey, factory Factory) (any, error) {
	k, err := keyOf(key)
	if err != nil {
		return nil, errors.Wrap(err, "di.RequestScope.ResolveOrCreate")
	}

	if factory == nil {
		return nil, errors.Errorf("di.RequestScope.ResolveOrCreate %s: factory is nil", key)
	}

	val, err := s.resolveOrCreate(ctx, k, factory)
	if err != nil {
		return nil, errors.Wrapf(err, "di.RequestScope.ResolveOrCreate %s", key)
	}

	return val, nil
}

func (s *RequestScope) resolveOrCreate(ctx context.Context, key *serviceKey, factory Factory) (any, error) {
	reg := s.current(ctx)
	if reg == nil {
		return nil, ErrOutsideRequestScope
	}

	return reg.getOrCreate(ctx, key, func(ctx context.Context) (any, Closer, error) {
		val, closer, err := factory(ctx)
		if err != nil {
			return nil, nil, err
		}

		s.log().DebugContext(ctx, "created request scoped instance",
			"scope", reg.id,
			"key", key.String(),
		)
		if s.observer != nil {
			s.observer.InstanceCreated(ctx, key)
		}

		return val, closer, nil
	})
}

// Track adds closer to the request scope on ctx. It is run by [RequestScope.Exit]
// together with the memoized instances.
//
// Track returns an error wrapping [ErrOutsideRequestScope] if ctx is not inside an
// active request scope.
func (s *RequestScope) Track(ctx context.Context, key ServiceKey, closer Closer) error {
	k, err := keyOf(key)
	if err != nil {
		return errors.Wrap(err, "di.RequestScope.Track")
	}

	if closer == nil {
		return errors.Errorf("di.RequestScope.Track %s: closer is nil", key)
	}

	return errors.Wrapf(s.track(ctx, k, closer), "di.RequestScope.Track %s", key)
}

func (s *RequestScope) track(ctx context.Context, key *serviceKey, closer Closer) error {
	reg := s.current(ctx)
	if reg == nil {
		return ErrOutsideRequestScope
	}

	return reg.track(ctx, key, closer)
}
