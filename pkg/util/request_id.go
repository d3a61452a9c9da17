package util

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey = ctxKey("x-request-id")

// WithRequestID returns a context carrying the given request id.
// A new uuid-v4 id is generated when the provided id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id from ctx if available.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
