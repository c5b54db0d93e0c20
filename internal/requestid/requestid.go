// Package requestid provides correlation identifiers for HTTP requests.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header that carries the request ID in both directions.
const Header = "X-Request-ID"

type ctxKey struct{}

// Generate creates a new unique request ID.
// Format: req-<uuid>
// Example: req-3f2c1a9e-6b7d-4c1e-9a0f-2b8d5e7c1a44
func Generate() string {
	return "req-" + uuid.NewString()
}

// FromHeader returns the client-supplied ID when it is a well-formed request
// ID, otherwise a freshly generated one.
func FromHeader(value string) string {
	if len(value) == len("req-")+36 && value[:4] == "req-" {
		if _, err := uuid.Parse(value[4:]); err == nil {
			return value
		}
	}
	return Generate()
}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID stored in ctx, or "" if none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
