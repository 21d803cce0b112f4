// Package logging correlates intercepted exchanges with their upstream
// requests. Each metered exchange gets a short correlation ID that shows up
// in log lines and travels upstream as the X-Request-Id header.
package logging

import (
	"context"

	"github.com/google/uuid"
)

// HeaderName is the request header the correlation ID travels under.
const HeaderName = "X-Request-Id"

type ctxKey struct{}

// GenerateRequestID returns a short correlation ID for one exchange.
func GenerateRequestID() string {
	return uuid.NewString()[:8]
}

// WithRequestID attaches a correlation ID to ctx for the forwarding path.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// GetRequestID returns the correlation ID carried by ctx, or "" when the
// request was never assigned one.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}
