package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID stores the ID of the scheduler run currently executing. Outbound
// collaborator calls forward it for correlation.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID retrieves the scheduler run ID from the context, if any.
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// CorrelationID returns the request ID if present, otherwise the run ID.
func CorrelationID(ctx context.Context) string {
	if id := GetRequestID(ctx); id != "" {
		return id
	}
	return GetRunID(ctx)
}
