package logger

import (
	"fmt"
	"maps"
	"sync"

	"github.com/honeycombio/traceguard/config"
)

// MockLogger records every logged event so tests can inspect them.
type MockLogger struct {
	Events []*MockLoggerEvent
	mutex  sync.Mutex
}

var _ = Logger((*MockLogger)(nil))

// MockLoggerEvent is one log line: its level, fields and formatted message.
type MockLoggerEvent struct {
	l       *MockLogger
	Level   config.Level
	Fields  map[string]any
	Message string
}

func (l *MockLogger) event(level config.Level) Entry {
	return &MockLoggerEvent{l: l, Level: level, Fields: make(map[string]any)}
}

func (l *MockLogger) Debug() Entry { return l.event(config.DebugLevel) }
func (l *MockLogger) Info() Entry  { return l.event(config.InfoLevel) }
func (l *MockLogger) Warn() Entry  { return l.event(config.WarnLevel) }
func (l *MockLogger) Error() Entry { return l.event(config.ErrorLevel) }

func (l *MockLogger) SetLevel(level string) error {
	return nil
}

// Messages returns the formatted messages logged at lvl, oldest first.
func (l *MockLogger) Messages(lvl config.Level) []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var msgs []string
	for _, e := range l.Events {
		if e.Level == lvl {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func (e *MockLoggerEvent) WithField(key string, value any) Entry {
	e.Fields[key] = value
	return e
}

func (e *MockLoggerEvent) WithString(key string, value string) Entry {
	return e.WithField(key, value)
}

func (e *MockLoggerEvent) WithFields(fields map[string]any) Entry {
	maps.Copy(e.Fields, fields)
	return e
}

func (e *MockLoggerEvent) Logf(f string, args ...any) {
	e.Message = fmt.Sprintf(f, args...)
	e.l.mutex.Lock()
	e.l.Events = append(e.l.Events, e)
	e.l.mutex.Unlock()
}
