// Package logger builds the zerolog loggers used by the binaries.
package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the logger configuration.
type Config struct {
	Level  string `env:"LEVEL"`  // default: "info"
	Format string `env:"FORMAT"` // "console" or "json", default: "json"
}

func (c *Config) level() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a root logger writing to w.
// If w is nil, it writes to os.Stderr.
func New(cfg *Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(cfg.level()).With().Timestamp().Logger()
}

// Named returns a child logger with a component field.
func Named(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// StdLogger adapts l to a *log.Logger for APIs like http.Server.ErrorLog.
// Every line is written at error level.
func StdLogger(l zerolog.Logger) *log.Logger {
	return log.New(errorWriter{l: l}, "", 0)
}

type errorWriter struct {
	l zerolog.Logger
}

func (w errorWriter) Write(p []byte) (int, error) {
	w.l.Error().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
