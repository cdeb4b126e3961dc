package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned when a bearer token is missing, malformed,
// expired, or otherwise cannot be resolved to an identity.
var ErrUnauthorized = errors.New("unauthorized")

// Role is the coarse permission level of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	ID            string
	Email         string
	Role          Role
	EmailVerified bool
}

// IsAdmin reports whether the identity may use back-office operations.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Verifier resolves an opaque bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
