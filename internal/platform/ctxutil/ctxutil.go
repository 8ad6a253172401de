package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

type callerDataKey struct{}

// CallerData identifies the authenticated caller for credit accounting and
// session-scoped reveal idempotency.
type CallerData struct {
	CallerID  string
	SessionID string
}

func WithCallerData(ctx context.Context, cd *CallerData) context.Context {
	return context.WithValue(ctx, callerDataKey{}, cd)
}

func GetCallerData(ctx context.Context) *CallerData {
	val := ctx.Value(callerDataKey{})
	if cd, ok := val.(*CallerData); ok {
		return cd
	}
	return nil
}

// Default returns ctx or context.Background when ctx is nil, so platform
// clients never pass a nil context to net/http or the drivers.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
