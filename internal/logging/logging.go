// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"ble-pacer.klederson.com/internal/config"
)

// ParseLevel maps a configured level to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLevel changes the global level, e.g. on config reload.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// Setup configures the logger. When the dashboard owns the terminal, logs
// go to cfg.File (or are discarded when none is set). The returned closer
// releases the log file.
func Setup(cfg config.LoggingConfig, tui bool) (zerolog.Logger, io.Closer, error) {
	SetLevel(cfg.Level)

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	case tui:
		out = io.Discard
	}

	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.File != ""}
	}

	// Default to JSON
	logger := zerolog.New(out).With().Timestamp().Str("app", config.AppName).Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
