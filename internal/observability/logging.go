package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures process-wide structured logging.
type LogConfig struct {
	// Level sets the minimum level: "debug", "info", "warn", "error".
	Level string
	// Format is "text" (development default) or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// SetupLogging installs the configured handler as slog's default, which
// every component picks up via slog.Default().
func SetupLogging(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
