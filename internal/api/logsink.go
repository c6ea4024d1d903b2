package api

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/dozer/internal/logger"
)

// LogEntry is the data of a "log" event.
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type logSink struct {
	parent logger.Logger
	hub    *Hub
}

// NewLogSink returns a Logger that writes to parent and also publishes every
// non-debug message on hub, so event listeners can tail the gateway log.
func NewLogSink(parent logger.Logger, hub *Hub) logger.Logger {
	return &logSink{parent: parent, hub: hub}
}

func (s *logSink) Debug(format string, args ...interface{}) {
	s.parent.Debug(format, args...)
}

func (s *logSink) Info(format string, args ...interface{}) {
	s.parent.Info(format, args...)
	s.publish("info", format, args...)
}

func (s *logSink) Warn(format string, args ...interface{}) {
	s.parent.Warn(format, args...)
	s.publish("warn", format, args...)
}

func (s *logSink) Error(format string, args ...interface{}) {
	s.parent.Error(format, args...)
	s.publish("error", format, args...)
}

func (s *logSink) publish(level, format string, args ...interface{}) {
	s.hub.Publish(Event{Type: EventLog, Data: LogEntry{
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}})
}

// With scopes the underlying logger; published messages are unchanged.
func (s *logSink) With(component string) logger.Logger {
	return &logSink{parent: logger.With(s.parent, component), hub: s.hub}
}
