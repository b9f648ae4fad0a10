// Package loggertest provides a capturing logger for tests of code that takes a logger.Logger.
//
// Example usage:
//
//	log := loggertest.NewMockLogger()
//	resolver, _ := auth.NewResolver(ctx, strategy, auth.WithLogger(log))
//	...
//	if !log.HasLog("info", "installation token refreshed") {
//	    t.Error("expected refresh log")
//	}
package loggertest

import (
	"context"
	"strings"
	"sync"

	"github.com/MyCarrier-DevOps/ghaccess/logger"
)

// LogEntry is a single captured message.
type LogEntry struct {
	Level   string
	Message string
	Error   error
	Fields  map[string]interface{}
}

type store struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// MockLogger captures every message. Loggers derived with WithFields share the parent's store.
type MockLogger struct {
	store  *store
	fields map[string]interface{}
}

var _ logger.Logger = (*MockLogger)(nil)

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &store{}}
}

func (m *MockLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	m.record("info", message, nil, fields)
}

func (m *MockLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	m.record("debug", message, nil, fields)
}

func (m *MockLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	m.record("warn", message, nil, fields)
}

func (m *MockLogger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	m.record("error", message, err, fields)
}

// WithFields returns a MockLogger that records into the same store with extra fields.
func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return &MockLogger{store: m.store, fields: merge(m.fields, fields)}
}

func (m *MockLogger) record(level, message string, err error, fields map[string]interface{}) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.entries = append(m.store.entries, LogEntry{
		Level:   level,
		Message: message,
		Error:   err,
		Fields:  merge(m.fields, fields),
	})
}

// Entries returns a copy of the captured entries at level, or all entries when level is empty.
func (m *MockLogger) Entries(level string) []LogEntry {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	out := make([]LogEntry, 0, len(m.store.entries))
	for _, e := range m.store.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasLog reports whether a message containing substr was logged at level.
func (m *MockLogger) HasLog(level, substr string) bool {
	for _, e := range m.Entries(level) {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Reset discards all captured entries.
func (m *MockLogger) Reset() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.entries = nil
}

func merge(base, fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}
