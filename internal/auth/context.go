// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithUser/FromContext for propagating the owner via context

package auth

import (
	"context"
)

// Identity holds the authenticated user extracted from a request.
// It is populated by the middleware and retrieved from context in handlers.
type Identity struct {
	UserID string // UUID of the authenticated user
	Email  string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithUser returns a new context with the Identity attached.
func WithUser(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
