// Package observability provides logger construction and the OTel metric
// instruments for the restart controller.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// LogFormat selects the log output encoding.
type LogFormat string

// Supported log formats.
const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// NewLogger builds an slog.Logger writing to w with the given level and
// format. Unknown level strings fall back to info.
func NewLogger(w io.Writer, level string, format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
