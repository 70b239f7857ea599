// Package txlog provides the leveled, styled logging used by the CLI
// tools. It wraps github.com/charmbracelet/log the way the teacher's
// textcolor.go wraps terminal color codes: a small set of named levels
// (Info, Warn, Error, Debug) that every call site reaches for instead
// of fmt.Printf.
package txlog

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the leveled logger every cmd/ tool and library warning
// path writes through.
type Logger struct {
	l *log.Logger
}

// New returns a Logger writing to w with the default prefix and
// timestamp reporting the teacher's textcolor.go never had (its
// terminal output predates structured logging entirely).
func New(w io.Writer) *Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "pyfustx",
	})
	return &Logger{l: l}
}

// Default returns a Logger writing to stderr at InfoLevel, the level
// every cmd/ tool runs at.
func Default() *Logger {
	return New(os.Stderr)
}

// SetVerbose raises the logger to DebugLevel when v is true, or back to
// InfoLevel otherwise.
func (lg *Logger) SetVerbose(v bool) {
	if v {
		lg.l.SetLevel(log.DebugLevel)
	} else {
		lg.l.SetLevel(log.InfoLevel)
	}
}

// Debug logs a debug-level message with structured key/value pairs.
func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }

// Info logs an info-level message with structured key/value pairs.
func (lg *Logger) Info(msg string, kv ...any) { lg.l.Info(msg, kv...) }

// Warn logs a warning, the level cmd/pyfustx reports the pulse-pattern
// synthesizer's duty-cycle clamp at (via pulsepattern.Warn).
func (lg *Logger) Warn(msg string, kv ...any) { lg.l.Warn(msg, kv...) }

// Error logs an error-level message with structured key/value pairs.
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }
