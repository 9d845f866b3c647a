package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// instanceID identifies this server process in aggregated logs.
var instanceID string

func init() {
	instanceID = os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		// Cloud Run sets K_REVISION, plain containers set HOSTNAME.
		instanceID = os.Getenv("K_REVISION")
	}
	if instanceID == "" {
		instanceID = os.Getenv("HOSTNAME")
	}
	if instanceID == "" {
		b := make([]byte, 4)
		_, _ = rand.Read(b)
		instanceID = hex.EncodeToString(b)
	}
}

// GetInstanceID returns the instance ID for this server.
func GetInstanceID() string {
	return instanceID
}

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyBookingID contextKey = "booking_id"
	ContextKeyOperation contextKey = "operation"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the given config.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:     config.Level,
			AddSource: true,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String(a.Key, a.Value.Time().Format(time.RFC3339))
				}
				return a
			},
		})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:      config.Level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
	}

	return &Logger{
		Logger: slog.New(handler).With(slog.String("instance_id", instanceID)),
	}
}

// Discard returns a logger that writes nowhere. Used by tests.
func Discard() *Logger {
	return New(Config{Level: slog.LevelError, Output: io.Discard})
}

// FromConfig creates a logger configuration from the main config.
func FromConfig(logLevel, logFormat string) Config {
	config := Config{
		Level:  slog.LevelInfo,
		Format: "text",
	}

	switch logLevel {
	case "debug":
		config.Level = slog.LevelDebug
	case "warn":
		config.Level = slog.LevelWarn
	case "error":
		config.Level = slog.LevelError
	}

	if logFormat != "" {
		config.Format = logFormat
	}
	if os.Getenv("APP_ENV") == "production" {
		config.Format = "json"
	}

	return config
}

// WithContext creates a new logger with context-specific attributes.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger
	for _, key := range []contextKey{ContextKeyRequestID, ContextKeyUserID, ContextKeyBookingID, ContextKeyOperation} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger = logger.With(slog.String(string(key), v))
		}
	}
	return &Logger{Logger: logger}
}

// WithComponent creates a new logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("component", component)),
	}
}

// LogError logs an error with additional context.
func (l *Logger) LogError(ctx context.Context, err error, msg string, args ...interface{}) {
	allArgs := append([]interface{}{"error", err}, args...)
	l.WithContext(ctx).Error(msg, allArgs...)
}
