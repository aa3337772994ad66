package middleware

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const IdentityKey contextKey = "identity"

func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the authenticated identity set by AuthMiddleware.
func GetIdentity(ctx context.Context) (*auth.Identity, error) {
	val := ctx.Value(IdentityKey)
	if val == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	id, ok := val.(*auth.Identity)
	if !ok || id == nil {
		return nil, fmt.Errorf("identity has wrong type: %T", val)
	}
	return id, nil
}

// MustGetIdentity panics when the identity is missing.
// Use only behind AuthMiddleware.
func MustGetIdentity(ctx context.Context) *auth.Identity {
	id, err := GetIdentity(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return id
}
