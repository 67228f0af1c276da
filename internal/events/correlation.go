package events

import "context"

type ctxKey int

const correlationIDKey ctxKey = iota

// WithCorrelationID stores the request correlation id so events published
// while serving the request can carry it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFrom(ctx context.Context) string {
	if s, ok := ctx.Value(correlationIDKey).(string); ok {
		return s
	}
	return ""
}
