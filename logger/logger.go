// Package logger is the small structured logging surface used across the gate.
package logger

// Fields carries structured context for a log line.
type Fields = map[string]any

type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
	// With returns a child logger that adds fields to every entry.
	With(fields Fields) Logger
	Sync() error
}

type NoopLogger struct{}

func (NoopLogger) Debug(string, Fields) {}
func (NoopLogger) Info(string, Fields)  {}
func (NoopLogger) Warn(string, Fields)  {}
func (NoopLogger) Error(string, Fields) {}
func (n NoopLogger) With(Fields) Logger { return n }
func (NoopLogger) Sync() error          { return nil }
