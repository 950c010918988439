package diecho

import (
	"context"
	"log/slog"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/internal/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestScope creates echo middleware that enters a new request scope for each request.
// The scope is exited after the handler returns, even if it returns an error or panics.
//
// The request scope is stored on the request context. Handlers must resolve [di.Scoped]
// services with c.Request().Context().
//
// Available options:
//   - [WithSkipper] skips requests that do not need a request scope.
//   - [WithExitErrorHandler] sets the error handler for when exiting the scope fails.
func RequestScope(rs *di.RequestScope, opts ...Option) (echo.MiddlewareFunc, error) {
	if rs == nil {
		return nil, errors.New("diecho.RequestScope: request scope is nil")
	}

	cfg := config{
		skipper:     middleware.DefaultSkipper,
		exitHandler: defaultExitErrorHandler,
	}

	var errs errors.MultiError
	for _, opt := range opts {
		errs = errs.Append(opt.apply(&cfg))
	}
	if err := errs.Wrap("diecho.RequestScope"); err != nil {
		return nil, err
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.skipper(c) {
				return next(c)
			}

			req := c.Request()
			ctx := rs.Enter(req.Context())
			c.SetRequest(req.WithContext(ctx))

			defer func() {
				if err := rs.Exit(context.WithoutCancel(ctx)); err != nil {
					cfg.exitHandler(c, err)
				}
			}()

			return next(c)
		}
	}, nil
}

// ExitErrorHandler handles errors when exiting the request scope after the handler has returned.
//
// The default handler logs the error to [slog.Default()].
type ExitErrorHandler = func(c echo.Context, err error)

func defaultExitErrorHandler(c echo.Context, err error) {
	slog.ErrorContext(c.Request().Context(), "error exiting echo request scope",
		"error", err,
		"path", c.Path(),
	)
}

type config struct {
	skipper     middleware.Skipper
	exitHandler ExitErrorHandler
}

// Option configures the middleware created by [RequestScope].
type Option interface {
	apply(*config) error
}

type option func(*config) error

func (o option) apply(c *config) error {
	return o(c)
}

// WithSkipper sets a function to skip the request scope for some requests,
// for example the metrics endpoint.
func WithSkipper(s middleware.Skipper) Option {
	return option(func(c *config) error {
		if s == nil {
			return errors.New("WithSkipper: skipper is nil")
		}

		c.skipper = s
		return nil
	})
}

// WithExitErrorHandler sets the error handler for when there is an error exiting the scope.
func WithExitErrorHandler(h ExitErrorHandler) Option {
	return option(func(c *config) error {
		if h == nil {
			return errors.New("WithExitErrorHandler: h is nil")
		}

		c.exitHandler = h
		return nil
	})
}
