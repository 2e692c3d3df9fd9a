package trace

import (
	"context"
)

type contextKey struct{}

// FromContext returns the correlation id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// WithContext attaches a correlation id to ctx so downstream logs can carry it.
func WithContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKey{}, correlationID)
}

// HeaderName is the HTTP header used to propagate correlation ids between services.
func HeaderName() string {
	return "X-Correlation-ID"
}
