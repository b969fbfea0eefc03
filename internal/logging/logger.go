package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Logger is a slog.Logger whose level can be changed after creation. Loggers
// derived with WithComponent or WithFields share the parent's level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config selects the handler and level for New.
type Config struct {
	Level      Level
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string

	// Color turns on ANSI level colors in console mode.
	Color bool

	// Buffer receives a copy of every record; nil uses GetAppLogBuffer.
	Buffer *RingBuffer
}

// DefaultConfig logs at info to stderr, colored when stderr is a terminal.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
		Color:      isTerminal(os.Stderr),
	}
}

// New builds a logger from cfg. Every record is also kept in cfg.Buffer.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	lv := new(slog.LevelVar)
	lv.Set(cfg.Level)

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource})
	} else {
		h = NewConsoleHandler(out, &slog.HandlerOptions{Level: lv}).WithColor(cfg.Color)
	}
	buf := cfg.Buffer
	if buf == nil {
		buf = GetAppLogBuffer()
	}
	return &Logger{Logger: slog.New(newCaptureHandler(h, buf)), level: lv}
}

var std atomic.Pointer[Logger]

// Default returns the process logger, creating one from DefaultConfig on
// first use.
func Default() *Logger {
	if l := std.Load(); l != nil {
		return l
	}
	std.CompareAndSwap(nil, New(DefaultConfig()))
	return std.Load()
}

// SetDefault replaces the process logger.
func SetDefault(l *Logger) {
	std.Store(l)
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// Level. The empty string is info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l *Logger) SetLevel(level Level) { l.level.Set(level) }

func (l *Logger) GetLevel() Level { return l.level.Level() }

func (l *Logger) derive(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent tags records with component=name. The console handler
// prints it before the message and the log buffer files entries under it.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive("component", name)
}

// WithFields adds fixed attributes to every record.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(args...)
}

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// WithComponent returns a component logger from the process logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}
