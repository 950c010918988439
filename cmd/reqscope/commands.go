package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kod-kristoff/reqscope/internal/app"
	"github.com/kod-kristoff/reqscope/internal/config"
	"github.com/spf13/cobra"
)

type flags struct {
	envFile   string
	addr      string
	dsn       string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "reqscope",
		Short:        "Demo server with one datastore connection per request",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", ".env", "file to load environment variables from, if it exists")
	pf.StringVar(&f.addr, "addr", "", "address to listen on (env "+config.EnvAddr+")")
	pf.StringVar(&f.dsn, "dsn", "", "SQLite data source name (env "+config.EnvDSN+")")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (env "+config.EnvLogLevel+")")
	pf.StringVar(&f.logFormat, "log-format", "", "text or json (env "+config.EnvLogFormat+")")

	root.AddCommand(
		newServeCmd(f),
		newCheckCmd(f),
	)

	return root
}

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := f.newApp(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.Run(ctx)
		},
	}
}

func newCheckCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one request in process and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := f.newApp(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			defer func() { _ = a.Container.Close(context.WithoutCancel(ctx)) }()

			return a.Check(ctx, cmd.OutOrStdout())
		},
	}
}

// newApp loads the configuration, applies flags that were set, and creates the app.
func (f *flags) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}

	set := func(name string, dst *string, val string) {
		if cmd.Flags().Changed(name) {
			*dst = val
		}
	}
	set("addr", &cfg.Addr, f.addr)
	set("dsn", &cfg.DSN, f.dsn)
	set("log-level", &cfg.LogLevel, f.logLevel)
	set("log-format", &cfg.LogFormat, f.logFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return app.New(cfg, logger)
}
