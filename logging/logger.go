package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	return slogLevel(l).String()
}

// ParseLevel maps a config string (debug|info|warn|error) to a LogLevel.
// Unknown values fall back to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// errUnknown stands in when a failure is reported without an error.
var errUnknown = errors.New("unknown failure")

// Logger defines the minimal logging interface for agentd.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// With returns l with args attached to every record. A nil l yields a
// NoOpLogger.
func With(l Logger, args ...any) Logger {
	switch base := l.(type) {
	case nil:
		return NoOpLogger{}
	case NoOpLogger:
		return base
	case *StructuredLogger:
		return base.with(args...)
	case *SlogAdapter:
		return &SlogAdapter{Logger: base.Logger.With(args...)}
	}

	if len(args) == 0 {
		return l
	}

	return &withLogger{base: l, attrs: args}
}

// withLogger prefixes the key/value pairs of a foreign Logger.
type withLogger struct {
	base  Logger
	attrs []any
}

func (w *withLogger) merge(args []any) []any {
	return append(append(make([]any, 0, len(w.attrs)+len(args)), w.attrs...), args...)
}

func (w *withLogger) Debug(msg string, args ...any) { w.base.Debug(msg, w.merge(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.base.Info(msg, w.merge(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.base.Warn(msg, w.merge(args)...) }
func (w *withLogger) Error(msg string, args ...any) { w.base.Error(msg, w.merge(args)...) }

// StructuredLogger is the slog backed logger of the daemon. Scoping methods
// return copies, so a scoped logger never leaks attributes into its parent.
// Besides the Logger methods it offers outcome helpers for tool calls,
// reasoning calls and runs.
type StructuredLogger struct {
	logger *slog.Logger
}

// LoggerConfig configures construction of a StructuredLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewLogger builds a StructuredLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := &StructuredLogger{logger: slog.New(handler)}
	if cfg.Component != "" {
		l = l.WithComponent(cfg.Component)
	}

	return l
}

// NewSlogLogger creates a new StructuredLogger writing to stdout with the
// specified level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func (l *StructuredLogger) with(args ...any) *StructuredLogger {
	if len(args) == 0 {
		return l
	}
	return &StructuredLogger{logger: l.logger.With(args...)}
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *StructuredLogger) WithContext(key string, value any) *StructuredLogger {
	return l.with(key, value)
}

// WithComponent sets the logical component (runner, flow, server, etc.).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	return l.with("component", c)
}

// WithSession attaches session and run identifiers.
func (l *StructuredLogger) WithSession(sid, rid string) *StructuredLogger {
	return l.with("session_id", sid, "run_id", rid)
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// outcome logs "<event>.completed" at info or "<event>.failed" at failLevel.
func (l *StructuredLogger) outcome(event string, dur time.Duration, err error, failLevel slog.Level, args ...any) {
	args = append(args, "duration", dur, "success", err == nil)

	if err == nil {
		l.logger.Info(event+".completed", args...)
		return
	}

	l.logger.Log(context.Background(), failLevel, event+".failed", append(args, "error", err.Error())...)
}

// LogToolCall records execution details for a tool invocation.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	if !success && err == nil {
		err = errUnknown
	}
	l.outcome("tool.call", dur, err, slog.LevelWarn, "tool_name", tool)
}

// LogReasoningCall records reasoning model latency, token usage and success.
func (l *StructuredLogger) LogReasoningCall(model string, tokens int, dur time.Duration, success bool, err error) {
	if !success && err == nil {
		err = errUnknown
	}
	l.outcome("reasoning.call", dur, err, slog.LevelError, "model", model, "token_count", tokens)
}

// LogRun records the outcome of a graph traversal: terminal state,
// iterations performed and wall time.
func (l *StructuredLogger) LogRun(state string, iterations int, dur time.Duration, err error) {
	l.outcome("runner.run", dur, err, slog.LevelError, "state", state, "iterations", iterations)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
