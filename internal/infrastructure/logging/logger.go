// Package logging provides structured logging for docsync.
// It wraps log/slog with context-aware attributes (tick, profile, file) and an
// optional size-rotated log file for the daemon.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// TickIDKey is the context key for scheduler tick ids.
	TickIDKey contextKey = "tick_id"
	// ProfileIDKey is the context key for destination profile ids.
	ProfileIDKey contextKey = "profile_id"
	// FileIDKey is the context key for remote file ids.
	FileIDKey contextKey = "file_id"
	// TriggerKey is the context key for what started the push (manual, batch, tick).
	TriggerKey contextKey = "trigger"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string

	// File, when set, receives log output through a rotating writer.
	// Output is ignored in that case.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with docsync context helpers.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
	closer  io.Closer
}

// defaultLogger is built on first use and shared by callers that have no
// container, such as package-level helpers in tests.
var defaultLogger = sync.OnceValue(func() *Logger { return New(DefaultConfig()) })

// Default returns the process-wide logger with default settings.
func Default() *Logger {
	return defaultLogger()
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	var closer io.Closer
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		output, closer = rotating, rotating
	}
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
		closer:  closer,
	}
}

func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel dynamically changes the log level. Loggers derived with With share it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), level: l.level}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{slogger: l.slogger.WithGroup(name), level: l.level}
}

func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+8)
	for _, key := range []contextKey{TickIDKey, ProfileIDKey, FileIDKey, TriggerKey} {
		if v := ctx.Value(key); v != nil {
			enriched = append(enriched, string(key), v)
		}
	}
	return append(enriched, args...)
}

// --- Context helpers ---

// WithTickID adds a scheduler tick id to the context.
func WithTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TickIDKey, id)
}

// WithProfileID adds a profile id to the context.
func WithProfileID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ProfileIDKey, id)
}

// WithFileID adds a remote file id to the context.
func WithFileID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, FileIDKey, id)
}

// WithTrigger records what started the current push.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, TriggerKey, trigger)
}

// TickID extracts the tick id from context.
func TickID(ctx context.Context) string {
	if s, ok := ctx.Value(TickIDKey).(string); ok {
		return s
	}
	return ""
}

// --- Domain-specific logging helpers ---

// LogPushComplete logs a document accepted by the destination.
func LogPushComplete(ctx context.Context, logger *Logger, fileName, documentID string, duration time.Duration) {
	logger.InfoContext(ctx, "document pushed",
		"file_name", fileName,
		"document_id", documentID,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogPushFailed logs a push that did not reach the destination.
func LogPushFailed(ctx context.Context, logger *Logger, fileName string, err error, duration time.Duration) {
	logger.ErrorContext(ctx, "document push failed",
		"file_name", fileName,
		"error", err.Error(),
		"duration_ms", duration.Milliseconds(),
	)
}

// LogTickSkipped logs a scheduler tick that did no work.
func LogTickSkipped(ctx context.Context, logger *Logger, reason string) {
	logger.DebugContext(ctx, "tick skipped", "reason", reason)
}

// LogTickComplete logs the outcome of a scheduler tick.
func LogTickComplete(ctx context.Context, logger *Logger, pushed, failed int, aborted bool, duration time.Duration) {
	logger.InfoContext(ctx, "tick completed",
		"pushed", pushed,
		"failed", failed,
		"aborted", aborted,
		"duration_ms", duration.Milliseconds(),
	)
}
