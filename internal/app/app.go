// Package app wires the container, the request scope and the HTTP server.
package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/diecho"
	"github.com/kod-kristoff/reqscope/diprom"
	"github.com/kod-kristoff/reqscope/internal/config"
	"github.com/kod-kristoff/reqscope/internal/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// App is the HTTP application.
type App struct {
	Container *di.Container
	Echo      *echo.Echo
	Registry  *prometheus.Registry

	cfg    config.Config
	logger *slog.Logger
}

// New creates the application. Extra container options are applied after the
// default modules, so they can replace any registration.
func New(cfg config.Config, logger *slog.Logger, opts ...di.ContainerOption) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs, err := diprom.NewObserver(reg)
	if err != nil {
		return nil, errors.Wrap(err, "app.New")
	}

	rs := di.NewRequestScope(
		di.WithLogger(logger),
		di.WithObserver(obs),
	)

	containerOpts := []di.ContainerOption{
		di.WithRequestScope(rs),
		di.WithModule(ConfigModule(cfg, logger)),
		di.WithModule(DatabaseModule),
		di.WithModule(HandlerModule),
	}
	c, err := di.NewContainer(append(containerOpts, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "app.New")
	}

	a := &App{
		Container: c,
		Registry:  reg,
		cfg:       cfg,
		logger:    logger,
	}

	a.Echo, err = a.newEcho()
	if err != nil {
		return nil, errors.Wrap(err, "app.New")
	}

	return a, nil
}

func (a *App) newEcho() (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	scope, err := diecho.RequestScope(a.Container.RequestScope(),
		diecho.WithSkipper(func(c echo.Context) bool {
			return c.Path() == metricsPath
		}),
		diecho.WithExitErrorHandler(func(c echo.Context, err error) {
			a.logger.ErrorContext(c.Request().Context(), "error exiting request scope",
				"error", err,
				"path", c.Path(),
			)
		}),
	)
	if err != nil {
		return nil, err
	}

	e.Use(middleware.Recover())
	e.Use(scope)

	e.GET("/", a.home)
	e.GET("/all", a.all)
	e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	return e, nil
}

func (a *App) home(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"at": "home"})
}

func (a *App) all(c echo.Context) error {
	ctx := c.Request().Context()

	h, err := di.Resolve(ctx, a.Container, HandlerKey)
	if err != nil {
		return err
	}

	rows, err := h.Get(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rows)
}

// Run serves HTTP on the configured address until ctx is done.
// The server is shut down gracefully and the container is closed.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "starting server", "addr", a.cfg.Addr)
		errCh <- a.Echo.Start(a.cfg.Addr)
	}()

	var runErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		runErr = a.Echo.Shutdown(shutdownCtx)
	}

	return errors.Join(
		errors.Wrap(runErr, "app.Run"),
		a.Container.Close(context.WithoutCancel(ctx)),
	)
}

// Check verifies the wiring and writes the result to w:
// resolving the store outside a request must fail, and one request to /all must succeed.
func (a *App) Check(ctx context.Context, w io.Writer) error {
	_, err := di.Resolve(ctx, a.Container, StoreKey)
	if !errors.Is(err, di.ErrOutsideRequestScope) {
		return errors.Errorf("app.Check: resolving %s outside a request: want %v, got %v",
			StoreKey, di.ErrOutsideRequestScope, err)
	}
	fmt.Fprintf(w, "outside request: %v\n", err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/all", http.NoBody)
	if err != nil {
		return errors.Wrap(err, "app.Check")
	}

	res := &bufferedResponse{header: http.Header{}}
	a.Echo.ServeHTTP(res, req)

	if res.code != http.StatusOK {
		return errors.Errorf("app.Check: GET /all: status %d: %s", res.code, res.body.String())
	}
	fmt.Fprintf(w, "GET /all: %s", res.body.String())

	return nil
}

// bufferedResponse is an http.ResponseWriter that keeps the response in memory.
type bufferedResponse struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *bufferedResponse) Header() http.Header {
	return r.header
}

func (r *bufferedResponse) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
}

func (r *bufferedResponse) Write(b []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(b)
}
