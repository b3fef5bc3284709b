package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/yanqian/flarecast/internal/infra/config"
)

// New constructs the service logger from the resolved configuration.
func New(cfg *config.Config) *slog.Logger {
	return NewWriter(os.Stdout, cfg)
}

// NewWriter is New with an explicit destination; the CLI logs to stderr so
// rendered output stays clean.
func NewWriter(w io.Writer, cfg *config.Config) *slog.Logger {
	return build(w, cfg.Log.Level, cfg.Log.Format).With("service", "flarecast", "env", cfg.Environment)
}

func build(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Leveler {
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
