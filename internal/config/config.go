// Package config loads the application configuration from the environment.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kod-kristoff/reqscope/internal/errors"
)

const (
	EnvAddr      = "REQSCOPE_ADDR"
	EnvDSN       = "REQSCOPE_DSN"
	EnvLogLevel  = "REQSCOPE_LOG_LEVEL"
	EnvLogFormat = "REQSCOPE_LOG_FORMAT"
)

// Config is the application configuration.
type Config struct {
	// Addr is the address the HTTP server listens on.
	Addr string
	// DSN is the data source name of the SQLite database opened for each request.
	DSN string
	// LogLevel is one of debug, info, warn or error.
	LogLevel string
	// LogFormat is text or json.
	LogFormat string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Addr:      ":8000",
		DSN:       ":memory:",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Test returns the configuration used by tests.
func Test() Config {
	cfg := Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.LogLevel = "debug"
	return cfg
}

// Load reads the given .env files, if they exist, and then the environment.
// Variables already set in the environment are not overwritten by .env files.
func Load(files ...string) (Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, errors.Wrap(err, "config.Load")
		}
	}

	cfg := Default()
	lookup(EnvAddr, &cfg.Addr)
	lookup(EnvDSN, &cfg.DSN)
	lookup(EnvLogLevel, &cfg.LogLevel)
	lookup(EnvLogFormat, &cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "config.Load")
	}

	return cfg, nil
}

func lookup(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the log level and format.
func (c Config) Validate() error {
	var errs errors.MultiError

	if _, err := c.level(); err != nil {
		errs = errs.Append(err)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = errs.Append(errors.Errorf("invalid log format %q", c.LogFormat))
	}

	if c.DSN == "" {
		errs = errs.Append(errors.New("dsn is empty"))
	}

	return errs.Join()
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// Logger creates a logger that writes to w using the configured level and format.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, errors.Wrap(err, "config.Logger")
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
