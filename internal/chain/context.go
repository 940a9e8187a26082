package chain

import "context"

type executionKey struct{}

// WithExecution marks ctx as running inside a committing unit of work.
func WithExecution(ctx context.Context) context.Context {
	return context.WithValue(ctx, executionKey{}, true)
}

// Executing reports whether ctx belongs to a committing unit of work.
func Executing(ctx context.Context) bool {
	v, _ := ctx.Value(executionKey{}).(bool)
	return v
}
