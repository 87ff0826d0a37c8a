// Package logging builds the leveled diagnostic logger shared by the TUI and
// the web front-end.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a Logger.
type Options struct {
	Level  string
	Format string
	Prefix string
	// Console receives a copy of every line when set. The TUI leaves it nil
	// so log output never lands on the alternate screen.
	Console io.Writer
}

// Logger appends structured lines to the diagnostic log file so failures
// can be inspected after the terminal session ends.
type Logger struct {
	*log.Logger
	file *os.File
}

// New creates (or reuses) the log file at path.
func New(path string, opts Options) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	var w io.Writer = f
	if opts.Console != nil {
		w = io.MultiWriter(f, opts.Console)
	}
	return &Logger{Logger: newLogger(w, opts), file: f}, nil
}

// NewWriter builds a Logger that writes to w only. Tests use it to capture
// output.
func NewWriter(w io.Writer, opts Options) *Logger {
	return &Logger{Logger: newLogger(w, opts)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, Options{})
}

func newLogger(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(opts.Level),
		Formatter:       ParseFormatter(opts.Format),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          opts.Prefix,
	})
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config level name to a log level. Unknown names fall
// back to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ParseFormatter maps a config format name to a formatter.
func ParseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
