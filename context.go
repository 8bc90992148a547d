package auditview

import "context"

type contextKey struct{ name string }

var correlationKey = contextKey{"correlation-id"}

// WithCorrelationID attaches a request correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFrom extracts the correlation id. Returns "" if absent.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}
