package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext contains request tracing information.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTraceContext creates a new TraceContext with generated IDs.
// Command-line tools use it so every log line of a run shares one trace id.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		RequestID: uuid.New().String(),
	}
}

// OperationContext names the bookkeeping operation in progress and the
// document it runs for.
type OperationContext struct {
	Name string
	// Reference is "kind:id" of the originating document, empty if none
	Reference string
}

type operationContextKey struct{}

// WithOperation adds OperationContext to context.
func WithOperation(ctx context.Context, op *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey{}, op)
}

// GetOperation returns OperationContext from context.
func GetOperation(ctx context.Context) *OperationContext {
	if v, ok := ctx.Value(operationContextKey{}).(*OperationContext); ok {
		return v
	}
	return nil
}
