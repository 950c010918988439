package dihttp

import (
	"github.com/kod-kristoff/reqscope/internal/errors"
)

// ScopeMiddlewareOption is an option used to configure the middleware
// when calling [NewRequestScopeMiddleware].
type ScopeMiddlewareOption interface {
	applyScopeMiddleware(*scopeMiddleware) error
}

type scopeMiddlewareOption func(*scopeMiddleware) error

func (o scopeMiddlewareOption) applyScopeMiddleware(m *scopeMiddleware) error {
	return o(m)
}

// WithScopeExitErrorHandler sets the error handler for when there is an error exiting the scope.
func WithScopeExitErrorHandler(h ScopeExitErrorHandler) ScopeMiddlewareOption {
	return scopeMiddlewareOption(func(m *scopeMiddleware) error {
		if h == nil {
			return errors.New("WithScopeExitErrorHandler: h is nil")
		}

		m.exitHandler = h
		return nil
	})
}
