package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey represents keys used for context values
type ContextKey string

const (
	// CycleIDKey is the context key for the id of a synchronization cycle
	CycleIDKey ContextKey = "cycle_id"
	// RequestIDKey is the context key for HTTP request ids
	RequestIDKey ContextKey = "request_id"
)

// NewCycleID returns a fresh cycle id
func NewCycleID() string {
	return uuid.NewString()
}

// NewRequestID returns a fresh request id
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// WithCycleID adds a cycle id to the context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// CycleID extracts the cycle id from context
func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(CycleIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID adds a request id to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID extracts the request id from context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Fields returns the correlation ids carried by ctx as log fields
func Fields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if id := CycleID(ctx); id != "" {
		fields["cycle_id"] = id
	}
	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := TraceID(ctx); id != "" {
		fields["trace_id"] = id
	}
	return fields
}
