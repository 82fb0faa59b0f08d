package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"roundtable/internal/infra/config"
)

const redacted = "[REDACTED]"

// sensitiveKeys are attribute key fragments whose values never reach a log line.
var sensitiveKeys = []string{"api_key", "apikey", "secret", "token", "password", "authorization"}

// New creates a configured *slog.Logger tagged with the service name.
// The returned closer releases the log file when output is a path.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(newHandler(writer, cfg)).With("service", "roundtable"), closer, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), ReplaceAttr: redact}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// redact masks non-empty string values stored under sensitive keys.
func redact(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || a.Value.String() == "" {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

// parseLevel accepts slog level names plus "warning"; anything else is info.
func parseLevel(s string) slog.Level {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openOutput resolves a target name or file path. The debate wire stream
// may own stdout, so stderr is the default.
func openOutput(output string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	case "discard", "none":
		return io.Discard, nop, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
