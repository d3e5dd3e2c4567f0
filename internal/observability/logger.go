// Package observability carries the logging contract shared by the host, the
// embed session, and the command-line tools.
package observability

import (
	"fmt"
	"log"
	"strings"
)

// Field is one key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Logger is the structured logging surface every layer writes to.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

var defaultLogger Logger = noopLogger{}

// SetLogger swaps the process-wide logger. Passing nil restores the silent
// default.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the process-wide logger.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// NewStdLogger adapts a stdlib logger into the structured Logger interface.
// Debug lines are suppressed unless debug is true.
func NewStdLogger(out *log.Logger, debug bool) Logger {
	return &stdLogger{out: out, debug: debug}
}

type stdLogger struct {
	out   *log.Logger
	debug bool
}

func (l *stdLogger) Debug(msg string, fields ...Field) {
	if !l.debug {
		return
	}
	l.emit("DEBUG", msg, fields)
}

func (l *stdLogger) Info(msg string, fields ...Field) {
	l.emit("INFO", msg, fields)
}

func (l *stdLogger) Error(msg string, fields ...Field) {
	l.emit("ERROR", msg, fields)
}

func (l *stdLogger) emit(level, msg string, fields []Field) {
	if l.out == nil {
		return
	}
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprintf("%v", f.Value))
	}
	l.out.Print(b.String())
}
