package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/config"
)

// ServiceName is attached to every entry as the "service" attribute.
const ServiceName = "starlink-bridge"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[redacted]"

var secretKeys = []string{"password", "token", "secret"}

// Logger is a slog.Logger carrying the service and version attributes.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New writes to the process stdout or stderr, as cfg.Output selects.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriters(cfg, version, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit writers behind the "stdout" and
// "stderr" outputs.
func NewWithWriters(cfg config.LoggingConfig, version string, stdout, stderr io.Writer) *Logger {
	w := stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = stderr
	}

	h := handler(cfg.Format, w, &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	})
	return &Logger{Logger: slog.New(h).With("service", ServiceName, "version", version)}
}

// With returns a child Logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func handler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel accepts the slog level names in any case plus "warning".
// Anything else is info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, secret := range secretKeys {
		if strings.Contains(key, secret) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
