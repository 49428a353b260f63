package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a config string onto a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a structured logger writing to w. Pretty selects the text
// handler for local runs, otherwise JSON.
func New(w io.Writer, level string, pretty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if pretty {
		h = slog.NewTextHandler(w, opts)
	} else {
		opts.AddSource = true
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}
