package app

import (
	"context"
	"log/slog"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/internal/config"
	"github.com/kod-kristoff/reqscope/internal/handler"
	"github.com/kod-kristoff/reqscope/internal/store"
)

var (
	ConfigKey  = di.NewKey[config.Config]("config")
	LoggerKey  = di.NewKey[*slog.Logger]("logger")
	StoreKey   = di.NewKey[*store.Store]("store")
	HandlerKey = di.NewKey[*handler.DataHandler]("handler")
)

// ConfigModule binds the configuration and logger as singletons.
func ConfigModule(cfg config.Config, logger *slog.Logger) di.Module {
	return di.Module{
		di.WithValue(ConfigKey, cfg),
		di.WithValue(LoggerKey, logger),
	}
}

// DatabaseModule opens one store per request. It is closed when the request ends.
var DatabaseModule = di.Module{
	di.WithService(StoreKey, OpenStore, di.Scoped),
}

// HandlerModule creates a new request handler each time it is resolved.
var HandlerModule = di.Module{
	di.WithService(HandlerKey, NewDataHandler),
}

func OpenStore(ctx context.Context, s di.Scope) (*store.Store, error) {
	cfg, err := di.Resolve(ctx, s, ConfigKey)
	if err != nil {
		return nil, err
	}

	logger, err := di.Resolve(ctx, s, LoggerKey)
	if err != nil {
		return nil, err
	}

	return store.Open(ctx, cfg.DSN, logger)
}

func NewDataHandler(ctx context.Context, s di.Scope) (*handler.DataHandler, error) {
	st, err := di.Resolve(ctx, s, StoreKey)
	if err != nil {
		return nil, err
	}

	return handler.NewDataHandler(st), nil
}
