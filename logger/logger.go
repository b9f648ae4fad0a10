package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger levels accepted in LOG_LEVEL.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// AppName is the default zap logger name.
const AppName = "ghaccess"

// NewAppLogger returns a production zap logger named name, leveled from LOG_LEVEL.
func NewAppLogger(name string) *zap.SugaredLogger {
	logLevel, _ := os.LookupEnv("LOG_LEVEL")
	return NewAppLoggerWithLevel(name, logLevel)
}

// NewAppLoggerWithLevel returns a production zap logger named name at logLevel.
// Output goes to stderr: the agent host owns stdout.
func NewAppLoggerWithLevel(name, logLevel string) *zap.SugaredLogger {
	config := ConfigureLogLevelLogger(logLevel)
	config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	if name == "" {
		name = AppName
	}
	return logger.Named(name).Sugar()
}

// ConfigureLogLevelLogger returns a zap production config for the given level name.
// Unknown or empty names select info.
func ConfigureLogLevelLogger(logLevel string) zap.Config {
	logConfig := zap.NewProductionConfig()
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case DebugLevel:
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case WarnLevel:
		logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case ErrorLevel:
		logConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return logConfig
}

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying log.
func WithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the Logger stored in ctx, or a NopLogger.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return log
	}
	return &NopLogger{}
}
