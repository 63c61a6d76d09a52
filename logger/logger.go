// Package logger provides structured logging for the voice runtime.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Turn-taking and streaming session logging with context fields
//   - Automatic bearer token and API key redaction
//   - Per-package level control (e.g. "streaming" at debug, "audio" at warn)
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	// logOutput is where handlers created by this package write.
	logOutput io.Writer = os.Stderr

	// customHandler is set by SetLogger; Configure leaves it untouched.
	customHandler slog.Handler

	mu sync.Mutex
)

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}

	DefaultLogger = slog.New(NewContextHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if customHandler != nil {
		return
	}
	DefaultLogger = slog.New(NewContextHandler(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetLogger replaces the global logger with one built on handler.
// Passing nil restores the default text handler.
func SetLogger(handler slog.Handler) {
	mu.Lock()
	customHandler = handler
	mu.Unlock()

	if handler == nil {
		SetLevel(slog.LevelInfo)
		return
	}
	DefaultLogger = slog.New(handler)
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// Logger is the logging surface components accept. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Default returns a Logger that forwards to whatever DefaultLogger is at call
// time, so later SetLevel or Configure calls take effect.
func Default() Logger {
	return globalLogger{}
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return noopLogger{}
}

type globalLogger struct{}

func (globalLogger) Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }
func (globalLogger) Info(msg string, args ...any)  { DefaultLogger.Info(msg, args...) }
func (globalLogger) Warn(msg string, args ...any)  { DefaultLogger.Warn(msg, args...) }
func (globalLogger) Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

var (
	// sensitivePatterns matches credentials that may show up in URLs or headers.
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
		regexp.MustCompile(`([?&](?:token|key|api_key)=)[^&\s]+`),
	}
)

// RedactSensitiveData removes API keys, bearer tokens, and token query
// parameters from strings before they are logged.
func RedactSensitiveData(input string) string {
	result := input

	for i, pattern := range sensitivePatterns {
		if i == len(sensitivePatterns)-1 {
			result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
			continue
		}
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
