package contexts

import "context"

// WithTraceID stores the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	container := getContainer(ctx)

	container.mu.Lock()
	container.TraceID = &traceID
	container.mu.Unlock()

	return withContainer(ctx, container)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	container := getContainer(ctx)

	container.mu.RLock()
	defer container.mu.RUnlock()

	if container.TraceID == nil {
		return "", false
	}

	return *container.TraceID, true
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	container := getContainer(ctx)

	container.mu.Lock()
	container.RequestID = &requestID
	container.mu.Unlock()

	return withContainer(ctx, container)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	container := getContainer(ctx)

	container.mu.RLock()
	defer container.mu.RUnlock()

	if container.RequestID == nil {
		return "", false
	}

	return *container.RequestID, true
}

// WithOperationName stores the operation name in the context.
func WithOperationName(ctx context.Context, name string) context.Context {
	container := getContainer(ctx)

	container.mu.Lock()
	container.OperationName = &name
	container.mu.Unlock()

	return withContainer(ctx, container)
}

// GetOperationName retrieves the operation name from the context.
func GetOperationName(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	container := getContainer(ctx)

	container.mu.RLock()
	defer container.mu.RUnlock()

	if container.OperationName == nil {
		return "", false
	}

	return *container.OperationName, true
}
