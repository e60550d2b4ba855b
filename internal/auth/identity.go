// Package auth is the authentication/identity gateway (C4): API-key
// hashing and lookup, scope checks, JWT issue/verify with a
// revocation blocklist, and password hashing for the dashboard's
// email/password login.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity represents the authenticated caller for the current request.
// An API-key caller has APIKeyID set and UserID nil; a dashboard JWT
// caller has UserID set and APIKeyID nil.
type Identity struct {
	TenantID   uuid.UUID
	TenantName string
	APIKeyID   *uuid.UUID
	APIKeyName string
	UserID     *uuid.UUID
	Email      string
	Role       string
	Scopes     []string
	RateLimit  int
}

// HasScope reports whether the identity carries scope s, honouring the
// "*" wildcard that grants all scopes.
func (id *Identity) HasScope(s string) bool {
	for _, sc := range id.Scopes {
		if sc == s || sc == "*" {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity may perform admin operations
// confined to its own tenant.
func (id *Identity) IsAdmin() bool {
	return id.HasScope("admin")
}

// IsSuperadmin reports whether the identity may act across tenants.
func (id *Identity) IsSuperadmin() bool {
	return id.HasScope("superadmin")
}

type ctxKey int

const identityKey ctxKey = iota

// NewContext stores the identity on ctx.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves the identity, or nil if unauthenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
