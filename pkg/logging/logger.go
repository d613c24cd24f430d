// Package logging provides structured logging for MCP sessions.
// Loggers are backed by log/slog handlers; request-scoped attributes travel
// on the context and are added to every record logged with that context.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	case InfoLevel:
		return slog.LevelInfo
	}
	if l > ErrorLevel {
		return slog.LevelError + 4*slog.Level(l-ErrorLevel)
	}
	return slog.LevelDebug
}

// ParseLevel parses a case-insensitive level name
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Format selects the slog handler used for output
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates a 64-bit integer field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error field
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithFields returns a new logger with additional fields
	WithFields(fields ...Field) Logger
	// WithContext returns a logger that includes the context's attributes
	WithContext(ctx context.Context) Logger
	// WithError returns a new logger with error context
	WithError(err error) Logger

	SetLevel(level Level)
	GetLevel() Level
}

type slogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	ctx    context.Context
}

// New creates a logger writing to output in the given format
func New(output io.Writer, format Format, level Level) Logger {
	if output == nil {
		output = os.Stderr
	}
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	return &slogLogger{
		logger: slog.New(slogctx.NewHandler(h, nil)),
		level:  lv,
		ctx:    context.Background(),
	}
}

// NewFromSlog adapts an existing slog logger. Its handler decides the level;
// SetLevel has no effect.
func NewFromSlog(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l, ctx: context.Background()}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return New(io.Discard, FormatText, ErrorLevel+10)
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *slogLogger) log(level slog.Level, msg string, fields []Field) {
	if !l.logger.Enabled(l.ctx, level) {
		return
	}
	l.logger.LogAttrs(l.ctx, level, msg, toAttrs(fields)...)
}

func (l *slogLogger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields))
	for _, a := range toAttrs(fields) {
		args = append(args, a)
	}
	return &slogLogger{logger: l.logger.With(args...), level: l.level, ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	return &slogLogger{logger: l.logger, level: l.level, ctx: ctx}
}

func (l *slogLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	fields := []Field{ErrorField(err)}
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		fields = append(fields,
			Int("error_code", mcpErr.Code()),
			String("error_category", string(mcpErr.Category())),
		)
		if ec := mcpErr.Context(); ec != nil {
			if ec.RequestID != "" {
				fields = append(fields, String("request_id", ec.RequestID))
			}
			if ec.Component != "" {
				fields = append(fields, String("component", ec.Component))
			}
			if ec.Operation != "" {
				fields = append(fields, String("operation", ec.Operation))
			}
		}
	}
	return l.WithFields(fields...)
}

func (l *slogLogger) SetLevel(level Level) {
	if l.level != nil {
		l.level.Set(level.slogLevel())
	}
}

func (l *slogLogger) GetLevel() Level {
	if l.level == nil {
		return InfoLevel
	}
	switch lv := l.level.Level(); {
	case lv <= slog.LevelDebug:
		return DebugLevel
	case lv <= slog.LevelInfo:
		return InfoLevel
	case lv <= slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func toAttrs(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			attrs = append(attrs, slog.String(f.Key, err.Error()))
			continue
		}
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}
