package dihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/internal/errors"
)

// NewRequestScopeMiddleware creates middleware that enters a new request scope for each request.
// The scope is exited after the request has been processed, even if the handler panics.
//
// The request scope is stored on the request context. Handlers must resolve [di.Scoped]
// services with r.Context().
//
// Available options:
//   - [WithScopeExitErrorHandler] sets the error handler for when exiting the scope fails.
func NewRequestScopeMiddleware(
	rs *di.RequestScope,
	opts ...ScopeMiddlewareOption,
) (func(http.Handler) http.Handler, error) {
	if rs == nil {
		return nil, errors.New("dihttp.NewRequestScopeMiddleware: request scope is nil")
	}

	var errs errors.MultiError
	mw := &scopeMiddleware{
		rs:          rs,
		exitHandler: defaultScopeExitErrorHandler,
	}
	for _, opt := range opts {
		errs = errs.Append(opt.applyScopeMiddleware(mw))
	}

	if err := errs.Wrap("dihttp.NewRequestScopeMiddleware"); err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return &scopeHandler{
			scopeMiddleware: mw,
			next:            next,
		}
	}, nil
}

// ScopeExitErrorHandler is a function that handles errors when exiting the request scope
// after the request has completed.
//
// The default handler logs the error to [slog.Default()].
type ScopeExitErrorHandler = func(r *http.Request, err error)

func defaultScopeExitErrorHandler(r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "error exiting HTTP request scope", "error", err)
}

type scopeMiddleware struct {
	rs          *di.RequestScope
	exitHandler ScopeExitErrorHandler
}

type scopeHandler struct {
	*scopeMiddleware
	next http.Handler
}

func (h *scopeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := h.rs.Enter(r.Context())
	r = r.WithContext(ctx)

	defer func() {
		// Release the scope even if the client went away.
		err := h.rs.Exit(context.WithoutCancel(ctx))
		if err != nil {
			h.exitHandler(r, err)
		}
	}()

	h.next.ServeHTTP(w, r)
}
