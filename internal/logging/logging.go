// Package logging provides structured logging for taskflow on top of zerolog.
//
// Log output never goes to stdout: when the MCP server runs on the stdio
// transport, stdout carries protocol frames.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a component name and an optional log file.
type Logger struct {
	zl        zerolog.Logger
	component string
	file      *os.File
	mu        *sync.Mutex
}

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Path   string // log file; empty logs to stderr
}

// DefaultConfig returns text logging at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// New creates a Logger. A non-empty Path is opened in append mode and its
// directory created if needed.
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{mu: &sync.Mutex{}}

	var output io.Writer = os.Stderr
	if cfg.Path != "" {
		path := expandPath(cfg.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger.file = f
		output = f
	}

	return logger.build(output, cfg.Format, level), nil
}

// NewWithWriter creates a Logger writing to w. Used by tests to capture output.
func NewWithWriter(w io.Writer, format string, level zerolog.Level) *Logger {
	l := &Logger{mu: &sync.Mutex{}}
	return l.build(w, format, level)
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), mu: &sync.Mutex{}}
}

func (l *Logger) build(output io.Writer, format string, level zerolog.Level) *Logger {
	if format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}
	l.zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	return l
}

// WithComponent returns a child Logger tagged with component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		file:      l.file,
		mu:        l.mu,
	}
}

// Component returns the component name, empty for the root logger.
func (l *Logger) Component() string {
	return l.component
}

// Debug starts a debug-level event.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info starts an info-level event.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn starts a warn-level event.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error starts an error-level event.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Err starts an error-level event carrying err.
func (l *Logger) Err(err error) *zerolog.Event {
	return l.zl.Error().Err(err)
}

// Close closes the log file, if any. Child loggers share the file with
// their parent, so only the root logger should be closed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel converts a level name into a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
