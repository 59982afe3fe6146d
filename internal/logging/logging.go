package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a structured logger at the level named by LOG_LEVEL.
func New() *slog.Logger {
	return NewWithLevel(os.Getenv("LOG_LEVEL"))
}

// NewWithLevel returns a text logger with secret redaction. Unknown levels
// fall back to info.
func NewWithLevel(level string) *slog.Logger {
	return NewWriter(os.Stdout, level)
}

// NewWriter is NewWithLevel writing to w.
func NewWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(parseLevel(level))))
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if isSecretKey(a.Key) {
				a.Value = slog.StringValue("[redacted]")
			}
			return a
		},
	}
}

func parseLevel(level string) slog.Level {
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

// isSecretKey matches on the last word of the key so that attributes like
// token_address stay readable while api_token is hidden.
func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	if i := strings.LastIndexAny(k, "_.-"); i >= 0 {
		k = k[i+1:]
	}
	switch k {
	case "token", "secret", "key", "apikey", "pass", "password", "authorization", "headers":
		return true
	}
	return false
}
