// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithKiosk returns a logger with kiosk and component context.
func WithKiosk(kioskId, component string) zerolog.Logger {
	return log.With().
		Str("kioskId", kioskId).
		Str("component", component).
		Logger()
}

// WithConnection returns a logger scoped to a single panel connection.
func WithConnection(kioskId, connectionId string) zerolog.Logger {
	return log.With().
		Str("kioskId", kioskId).
		Str("component", "voice-bridge").
		Str("connectionId", connectionId).
		Logger()
}

// WithListenSession returns a logger scoped to a server-side recognition session.
func WithListenSession(connectionId, sessionId, provider string) zerolog.Logger {
	return log.With().
		Str("connectionId", connectionId).
		Str("sessionId", sessionId).
		Str("sttProvider", provider).
		Logger()
}
