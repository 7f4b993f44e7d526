package correlation

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithRequestID scopes a correlation id to ctx and everything derived from it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func RequestIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func NewRequestID() string {
	return uuid.NewString()
}
