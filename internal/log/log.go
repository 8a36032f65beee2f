// Package log sets up the process wide slog logger and carries
// request or run scoped loggers through a context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	charm "github.com/charmbracelet/log"
)

type ctxKey struct{}

// Debug is set from the command line and lowers the log level to debug.
var Debug bool

const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Level returns the effective log level. The debug flag wins over the
// configured level name.
func Level(name string) slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(name) {
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

// NewHandler returns a slog handler writing to w in the given format.
// Unknown formats fall back to text.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	switch strings.ToLower(format) {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatPretty:
		return charm.NewWithOptions(w, charm.Options{
			ReportTimestamp: true,
			Prefix:          "bankpull",
			Level:           charm.Level(level),
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
}

func InitializeDefaultLogger(format, levelName string) {
	logger := slog.New(NewHandler(os.Stdout, format, Level(levelName)))
	slog.SetDefault(logger)
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
