// Package common holds shared infrastructure used across the decode
// pipeline.
package common

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Severity represents log message severity levels
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) zerolog() zerolog.Level {
	switch s {
	case SeverityDebug:
		return zerolog.DebugLevel
	case SeverityInfo:
		return zerolog.InfoLevel
	case SeverityWarning:
		return zerolog.WarnLevel
	case SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger interface defines the logging contract for the decoder
type Logger interface {
	// Log logs a message with the specified severity
	Log(severity Severity, msg string)

	// Logf logs a formatted message with the specified severity
	Logf(severity Severity, format string, args ...interface{})

	// Error logs an error
	Error(err error)

	// Debug logs a debug message
	Debug(msg string)

	// Info logs an info message
	Info(msg string)

	// Warning logs a warning message
	Warning(msg string)
}

// ZerologLogger implements the Logger interface on a zerolog logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// InitLogger builds the process logger: console output tagged with the
// application name. Severities below minLevel are suppressed.
func InitLogger(app string, minLevel Severity) *ZerologLogger {
	return NewZerologLoggerWithWriter(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}, app, minLevel)
}

// NewZerologLoggerWithWriter builds a logger writing to w.
func NewZerologLoggerWithWriter(w io.Writer, app string, minLevel Severity) *ZerologLogger {
	l := zerolog.New(w).Level(minLevel.zerolog()).With().Timestamp().Str("app", app).Logger()
	return &ZerologLogger{log: l}
}

// With returns a logger carrying an extra string field on every message.
func (l *ZerologLogger) With(key, value string) *ZerologLogger {
	return &ZerologLogger{log: l.log.With().Str(key, value).Logger()}
}

// Log logs a message with the specified severity
func (l *ZerologLogger) Log(severity Severity, msg string) {
	l.log.WithLevel(severity.zerolog()).Msg(msg)
}

// Logf logs a formatted message with the specified severity
func (l *ZerologLogger) Logf(severity Severity, format string, args ...interface{}) {
	l.Log(severity, fmt.Sprintf(format, args...))
}

// Error logs an error
func (l *ZerologLogger) Error(err error) {
	if err != nil {
		l.log.Error().Err(err).Msg(err.Error())
	}
}

// Debug logs a debug message
func (l *ZerologLogger) Debug(msg string) {
	l.Log(SeverityDebug, msg)
}

// Info logs an info message
func (l *ZerologLogger) Info(msg string) {
	l.Log(SeverityInfo, msg)
}

// Warning logs a warning message
func (l *ZerologLogger) Warning(msg string) {
	l.Log(SeverityWarning, msg)
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Log does nothing
func (l *NoOpLogger) Log(severity Severity, msg string) {}

// Logf does nothing
func (l *NoOpLogger) Logf(severity Severity, format string, args ...interface{}) {}

// Error does nothing
func (l *NoOpLogger) Error(err error) {}

// Debug does nothing
func (l *NoOpLogger) Debug(msg string) {}

// Info does nothing
func (l *NoOpLogger) Info(msg string) {}

// Warning does nothing
func (l *NoOpLogger) Warning(msg string) {}
