package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

// GenerateTraceID returns a random UUID v4. Runs and HTTP requests without
// an incoming id are traced under one.
func GenerateTraceID() string {
	return uuid.New().String()
}

// EnsureTraceID ensures the context has a trace ID, generating one if needed
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, GenerateTraceID())
	}
	return ctx
}
