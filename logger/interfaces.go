package logger

import (
	"context"
)

// Logger is the structured logging interface used by every ghaccess package.
// Fields are attached as key/value pairs; implementations must be safe for concurrent use.
type Logger interface {
	// Info logs an informational message with optional structured fields.
	Info(ctx context.Context, message string, fields map[string]interface{})

	// Debug logs a debug message with optional structured fields.
	Debug(ctx context.Context, message string, fields map[string]interface{})

	// Warn logs a warning message with optional structured fields.
	Warn(ctx context.Context, message string, fields map[string]interface{})

	// Error logs an error message with the error and optional structured fields.
	Error(ctx context.Context, message string, err error, fields map[string]interface{})

	// WithFields returns a Logger that adds fields to every subsequent message.
	WithFields(fields map[string]interface{}) Logger
}

// NopLogger discards everything. Components fall back to it when no logger is supplied.
type NopLogger struct{}

var _ Logger = (*NopLogger)(nil)

func (l *NopLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {}

func (l *NopLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {}

func (l *NopLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {}

func (l *NopLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
}

// WithFields returns the same NopLogger.
func (l *NopLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}

// OrNop returns log, or a NopLogger when log is nil.
func OrNop(log Logger) Logger {
	if log == nil {
		return &NopLogger{}
	}
	return log
}

// mergeFields merges base fields with call fields; call fields win.
func mergeFields(base, fields map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(fields) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(base)+len(fields))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range fields {
		result[k] = v
	}
	return result
}
