package log

import "context"

// Hook enriches a log entry with fields derived from the context before
// it is written, e.g. trace and request IDs.
type Hook interface {
	Apply(ctx context.Context, msg string, fields ...Field) []Field
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, msg string, fields ...Field) []Field

func (f HookFunc) Apply(ctx context.Context, msg string, fields ...Field) []Field {
	return f(ctx, msg, fields...)
}
