// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package logging provides the process-wide zerolog logger for Chronicle.
//
// The logger is global so that storage adapters, the audit engine and the
// HTTP layer emit one consistent stream. It is usable before Init is called;
// Init reconfigures it in place.
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("store", "sqlite").Msg("Store opened")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Query failed")
//
// Always terminate event chains with Msg or Send, otherwise nothing is written.
// Libraries that expect log/slog (suture's event hook) get a bridge through
// NewSlogLogger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error or disabled.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`

	// Format is json or console.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	// Caller adds file:line to every entry.
	Caller bool `koanf:"caller"`

	// Timestamp adds a time field to every entry.
	Timestamp bool `koanf:"timestamp"`

	// Output defaults to os.Stderr.
	Output io.Writer `koanf:"-"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // logging must work before Init
func init() {
	Init(DefaultConfig())
}

// Init reconfigures the global logger. It is safe to call more than once.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	var out io.Writer = cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	zctx := zerolog.New(out).With()
	if cfg.Timestamp {
		zctx = zctx.Timestamp()
	}
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	SetLogger(zctx.Logger())
}

// parseLevel maps a level name onto zerolog.Level. "warning" is accepted as
// an alias; empty and unknown names fall back to info.
func parseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger replaces the global logger. Tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// WithComponent returns a child of the global logger tagged with component.
//
//	storeLog := logging.WithComponent("storage")
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// Debug starts a debug level message.
func Debug() *zerolog.Event { return current.Load().Debug() }

// Info starts an info level message.
func Info() *zerolog.Event { return current.Load().Info() }

// Warn starts a warning level message.
func Warn() *zerolog.Event { return current.Load().Warn() }

// Error starts an error level message.
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal starts a fatal message. os.Exit(1) follows once it is written.
func Fatal() *zerolog.Event { return current.Load().Fatal() }
