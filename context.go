package changetrail

import (
	"context"
)

type metaKey struct{}
type skipKey struct{}

// Meta carries who changed a record, under which trace, and why.
type Meta struct {
	Operator string
	TraceID  string
	Reason   string
}

// WithOperator attaches the identifier of whoever performs the change.
func WithOperator(ctx context.Context, v string) context.Context {
	m := MetaFrom(ctx)
	m.Operator = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithTraceID attaches a trace identifier.
func WithTraceID(ctx context.Context, v string) context.Context {
	m := MetaFrom(ctx)
	m.TraceID = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithReason attaches a human-readable reason for the change.
func WithReason(ctx context.Context, v string) context.Context {
	m := MetaFrom(ctx)
	m.Reason = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithSkip marks the context so statements run through it leave no history.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

// MetaFrom returns the metadata attached to ctx.
func MetaFrom(ctx context.Context) Meta {
	if m, ok := ctx.Value(metaKey{}).(Meta); ok {
		return m
	}
	return Meta{}
}

func skipped(ctx context.Context) bool {
	v, _ := ctx.Value(skipKey{}).(bool)
	return v
}
