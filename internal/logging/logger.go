// Package logging builds the zerolog logger used by the sacnrx binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hundemeier/go-sacn/internal/config"
)

// New creates a logger writing to stdout. Format "json" writes one JSON object per line,
// anything else a human readable console format.
func New(cfg config.LoggingConfig, app string) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, app)
}

// NewWithWriter is like New but writes to out.
func NewWithWriter(out io.Writer, cfg config.LoggingConfig, app string) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stdout,
		}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Str("app", app).
		Logger()
}

// ParseLevel converts a level name to a zerolog level. Unknown names map to info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
