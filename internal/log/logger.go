package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattjoyce/uploader/internal/protocol"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels.
// Anything else is INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the global logger.
// With an emitter, records become log events on the output stream. Without
// one (CLI subcommands that do not speak the protocol) they go to stderr.
func Setup(level string, emitter protocol.Emitter) {
	once.Do(func() {
		l := ParseLevel(level)

		var handler slog.Handler
		if emitter != nil {
			handler = NewEventHandler(emitter, l)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
		}
		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO", nil)
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithJob returns a logger with the job_id field set.
func WithJob(id string) *slog.Logger {
	return Get().With(slog.String("job_id", id))
}

// WithTarget returns a logger with the service field set.
func WithTarget(name string) *slog.Logger {
	return Get().With(slog.String("service", name))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
