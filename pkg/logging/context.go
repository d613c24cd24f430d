package logging

import (
	"context"

	slogctx "github.com/veqryn/slog-context"
)

// Well-known attribute keys
const (
	KeySessionID = "session_id"
	KeyRequestID = "request_id"
	KeyMethod    = "method"
)

// NewContext returns a context whose records carry fields in addition to the
// logger's own. It is how session and request identifiers reach handler
// logs.
func NewContext(ctx context.Context, fields ...Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	args := make([]any, 0, len(fields))
	for _, a := range toAttrs(fields) {
		args = append(args, a)
	}
	return slogctx.Append(ctx, args...)
}

// ContextWithRequestID returns a context tagged with a request id
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return NewContext(ctx, String(KeyRequestID, requestID))
}

// ContextWithLogger stores l so handlers can retrieve it with FromContext.
// Loggers from other packages are stored through their slog form when
// possible.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if sl, ok := l.(*slogLogger); ok {
		return slogctx.NewCtx(ctx, sl.logger)
	}
	return ctx
}

// FromContext returns the logger stored in ctx, or one wrapping
// slog.Default. The result already includes ctx's attributes.
func FromContext(ctx context.Context) Logger {
	return NewFromSlog(slogctx.FromCtx(ctx)).WithContext(ctx)
}
