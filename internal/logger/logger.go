package logger

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger defines the logging interface used throughout the application
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	SetLevel(level zerolog.Level)
	GetLevel() zerolog.Level
	EnableHTTPLogging()
	DisableHTTPLogging()
	IsHTTPLoggingEnabled() bool
}

// ZeroLogger wraps zerolog.Logger to implement our Logger interface.
// Loggers derived with With share the level and HTTP logging switch of their parent.
type ZeroLogger struct {
	logger      zerolog.Logger
	level       *atomic.Int32
	httpLogging *atomic.Bool
}

// New creates a JSON logger on stdout at info level.
func New() *ZeroLogger {
	return NewWithLevel(zerolog.InfoLevel)
}

// NewWithLevel creates a JSON logger on stdout with a specific level
func NewWithLevel(level zerolog.Level) *ZeroLogger {
	return NewWithWriter(os.Stdout, level)
}

// NewConsole creates a human-readable logger for development.
func NewConsole(level zerolog.Level) *ZeroLogger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level zerolog.Level) *ZeroLogger {
	zl := &ZeroLogger{
		logger:      zerolog.New(w).With().Timestamp().Logger(),
		level:       &atomic.Int32{},
		httpLogging: &atomic.Bool{},
	}
	zl.level.Store(int32(level))
	return zl
}

// NewNop returns a logger that discards everything.
func NewNop() *ZeroLogger {
	return NewWithWriter(io.Discard, zerolog.Disabled)
}

// ParseLevel converts a string log level to a zerolog.Level.
// Accepts: debug, info, warn, error (case-insensitive).
// Returns zerolog.InfoLevel if the level is not recognized.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZeroLogger) Debug(msg string, args ...any) {
	l.emit(zerolog.DebugLevel, msg, args)
}

func (l *ZeroLogger) Info(msg string, args ...any) {
	l.emit(zerolog.InfoLevel, msg, args)
}

func (l *ZeroLogger) Warn(msg string, args ...any) {
	l.emit(zerolog.WarnLevel, msg, args)
}

func (l *ZeroLogger) Error(msg string, args ...any) {
	l.emit(zerolog.ErrorLevel, msg, args)
}

// With returns a child logger that adds the given key/value pairs to every entry.
func (l *ZeroLogger) With(args ...any) Logger {
	return &ZeroLogger{
		logger:      l.logger.With().Fields(pairs(args)).Logger(),
		level:       l.level,
		httpLogging: l.httpLogging,
	}
}

func (l *ZeroLogger) emit(level zerolog.Level, msg string, args []any) {
	current := l.GetLevel()
	if current == zerolog.Disabled || level < current {
		return
	}
	l.logger.WithLevel(level).Fields(pairs(args)).Msg(msg)
}

// pairs drops a trailing key with no value so zerolog never sees an odd field list.
func pairs(args []any) []any {
	if len(args)%2 != 0 {
		return args[:len(args)-1]
	}
	return args
}

// SetLevel changes the logging level dynamically
func (l *ZeroLogger) SetLevel(level zerolog.Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current logging level
func (l *ZeroLogger) GetLevel() zerolog.Level {
	return zerolog.Level(l.level.Load())
}

// EnableHTTPLogging enables HTTP request logging
func (l *ZeroLogger) EnableHTTPLogging() {
	l.httpLogging.Store(true)
}

// DisableHTTPLogging disables HTTP request logging
func (l *ZeroLogger) DisableHTTPLogging() {
	l.httpLogging.Store(false)
}

// IsHTTPLoggingEnabled returns whether HTTP logging is enabled
func (l *ZeroLogger) IsHTTPLoggingEnabled() bool {
	return l.httpLogging.Load()
}
