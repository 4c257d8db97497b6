// Package logging provides a thin structured-logging wrapper around
// logrus, shared by every internal package that needs operational
// visibility (market-data routing, task execution, storage).
//
// Grounded on the teacher's infrastructure/logging/logger.go. Trimmed of
// the teacher's blockchain/crypto/audit-specific helpers (no blockchain
// or cryptographic operations exist in this service) and kept to the
// database/performance logging shapes this service actually exercises.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried by this package.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	TaskIDKey  ContextKey = "task_id"
	UserIDKey  ContextKey = "user_id"
)

// Logger wraps logrus.Logger with a fixed service field and context helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service at the given level ("debug", "info",
// "warn", "error") and format ("json" or "text").
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger using LOG_LEVEL and LOG_FORMAT, defaulting to
// "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry carrying any trace/task/user IDs found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(TaskIDKey); v != nil {
		entry = entry.WithField("task_id", v)
	}
	if v := ctx.Value(UserIDKey); v != nil {
		entry = entry.WithField("user_id", v)
	}
	return entry
}

// WithFields returns an entry with the service field plus the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns an entry with the service field plus an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// LogDatabaseQuery logs a storage-layer query at debug (success) or error level.
func (l *Logger) LogDatabaseQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("database query failed")
		return
	}
	entry.Debug("database query executed")
}

// LogPerformance logs arbitrary named timing/count metrics at info level.
func (l *Logger) LogPerformance(ctx context.Context, operation string, fields map[string]interface{}) {
	f := logrus.Fields{"operation": operation, "type": "performance"}
	for k, v := range fields {
		f[k] = v
	}
	l.WithContext(ctx).WithFields(f).Info("performance metrics")
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTaskID attaches a task ID to ctx.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// WithUserID attaches a user ID to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

var defaultLogger *Logger

// InitDefault sets the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level default logger, lazily creating a
// basic one if InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("analysiscore", "info", "json")
	}
	return defaultLogger
}
