package telemetry

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opsflow/opsflow/core"
)

// Logger implements core.Logger on top of zerolog. JSON output is the
// default; text format uses zerolog's console writer for local
// development.
type Logger struct {
	l zerolog.Logger
}

// NewLogger creates a logger writing to stdout. Level accepts the
// usual zerolog names (debug, info, warn, error); format is "json" or
// "text".
func NewLogger(service, level, format string) *Logger {
	return NewLoggerTo(os.Stdout, service, level, format)
}

// NewLoggerTo creates a logger writing to the given writer
func NewLoggerTo(w io.Writer, service, level, format string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	zl := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &Logger{l: zl}
}

// Info logs informational messages
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.emit(l.l.Info(), msg, fields)
}

// Warn logs warning messages
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.emit(l.l.Warn(), msg, fields)
}

// Error logs error messages
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.emit(l.l.Error(), msg, fields)
}

// Debug logs debug messages
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.emit(l.l.Debug(), msg, fields)
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields map[string]interface{}) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Ensure Logger implements core.Logger
var _ core.Logger = (*Logger)(nil)
