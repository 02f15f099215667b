package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quorumhq/regcache/internal/contexts"
)

// GenerateTraceID generates a trace id, formatted as rc-{{uuid}}.
func GenerateTraceID() string {
	id := uuid.New()
	return fmt.Sprintf("rc-%s", id.String())
}

// GenerateRequestID generates a per-request id, formatted as rq-{{uuid}}.
func GenerateRequestID() string {
	id := uuid.New()
	return fmt.Sprintf("rq-%s", id.String())
}

// WithTraceID stores the trace id in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return contexts.WithTraceID(ctx, traceID)
}

// GetTraceID gets the trace id from the context.
func GetTraceID(ctx context.Context) (string, bool) {
	return contexts.GetTraceID(ctx)
}

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return contexts.WithRequestID(ctx, requestID)
}

// GetRequestID gets the request id from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	return contexts.GetRequestID(ctx)
}

// WithOperationName stores the operation name in the context.
func WithOperationName(ctx context.Context, name string) context.Context {
	return contexts.WithOperationName(ctx, name)
}

// GetOperationName gets the operation name from the context.
func GetOperationName(ctx context.Context) (string, bool) {
	return contexts.GetOperationName(ctx)
}
