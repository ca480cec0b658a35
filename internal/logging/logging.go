// Package logging sets up the process-wide slog logger for the legal-rag service.
// Every record carries service=legal-rag; loggers from New add the component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const service = "legal-rag"

// Init installs a stderr logger as the slog default.
func Init(level slog.Level, format string) {
	Setup(os.Stderr, level, format)
}

// Setup installs a logger writing to w. A format of "json" selects the JSON
// handler; anything else gets logfmt-style text.
func Setup(w io.Writer, level slog.Level, format string) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h).With(slog.String("service", service)))
}

// ParseLevel reads LOG_LEVEL. It accepts slog level names in any case, offsets
// such as "INFO+2", and WARNING; anything else is INFO.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
