package fake

import (
	"context"
	"sync"
	"time"

	"github.com/JailtonJunior94/pipetrace/pkg/observability"
)

// Logger captures all log operations for test assertions.
type Logger struct {
	mu      *sync.RWMutex
	entries *[]LogEntry
	fields  []observability.Field
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level     observability.LogLevel
	Message   string
	Fields    []observability.Field
	Timestamp time.Time
}

// Field returns the value of the named field and whether it was present.
func (e LogEntry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// NewLogger creates a new fake logger.
func NewLogger() *Logger {
	entries := make([]LogEntry, 0)
	return &Logger{
		mu:      &sync.RWMutex{},
		entries: &entries,
		fields:  make([]observability.Field, 0),
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelDebug, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelInfo, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelWarn, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelError, msg, fields)
}

func (l *Logger) append(level observability.LogLevel, msg string, fields []observability.Field) {
	all := make([]observability.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    all,
		Timestamp: time.Now(),
	})
}

// With creates a child logger sharing the same entry buffer.
func (l *Logger) With(fields ...observability.Field) observability.Logger {
	merged := make([]observability.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{
		mu:      l.mu,
		entries: l.entries,
		fields:  merged,
	}
}

// Entries returns all captured log entries.
func (l *Logger) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]LogEntry, len(*l.entries))
	copy(result, *l.entries)
	return result
}

// EntriesAt returns the captured entries with the given level.
func (l *Logger) EntriesAt(level observability.LogLevel) []LogEntry {
	var result []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			result = append(result, e)
		}
	}
	return result
}

// Contains reports whether an entry with the given level and message was captured.
func (l *Logger) Contains(level observability.LogLevel, msg string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Reset clears all captured log entries.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = make([]LogEntry, 0)
}
