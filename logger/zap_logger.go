package logger

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger adapts a zap.SugaredLogger to Logger.
type ZapLogger struct {
	sugar  *zap.SugaredLogger
	fields map[string]interface{}
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger wraps sugar.
func NewZapLogger(sugar *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{
		sugar:  sugar,
		fields: make(map[string]interface{}),
	}
}

// NewZapLoggerWithLevel combines NewAppLoggerWithLevel and NewZapLogger.
func NewZapLoggerWithLevel(name, logLevel string) *ZapLogger {
	return NewZapLogger(NewAppLoggerWithLevel(name, logLevel))
}

func (l *ZapLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.logWithFields(l.sugar.Infow, message, mergeFields(l.fields, fields))
}

func (l *ZapLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.logWithFields(l.sugar.Debugw, message, mergeFields(l.fields, fields))
}

func (l *ZapLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.logWithFields(l.sugar.Warnw, message, mergeFields(l.fields, fields))
}

func (l *ZapLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	allFields := mergeFields(l.fields, fields)
	if err != nil {
		if allFields == nil {
			allFields = make(map[string]interface{})
		}
		allFields["error"] = err.Error()
	}
	l.logWithFields(l.sugar.Errorw, message, allFields)
}

// WithFields returns a new ZapLogger with fields added.
func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	return &ZapLogger{
		sugar:  l.sugar,
		fields: mergeFields(l.fields, fields),
	}
}

// Sugar returns the underlying zap.SugaredLogger.
func (l *ZapLogger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Sync flushes buffered entries. Call it before the process exits.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *ZapLogger) logWithFields(logFn func(string, ...interface{}), message string, fields map[string]interface{}) {
	if len(fields) == 0 {
		logFn(message)
		return
	}
	kvPairs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kvPairs = append(kvPairs, k, v)
	}
	logFn(message, kvPairs...)
}
