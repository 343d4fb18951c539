package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const principalKey ctxKey = "marketplace.principal"

// Roles carried in the access token.
const (
	RoleClient = "client"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// WithPrincipal stores the caller in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the caller if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	val := ctx.Value(principalKey)
	if val == nil {
		return Principal{}, false
	}
	p, ok := val.(Principal)
	return p, ok && p.UserID != uuid.Nil
}
