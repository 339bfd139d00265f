package auth

import (
	"context"

	"github.com/utafrali/accounts/internal/domain"
)

// Principal is the authenticated caller of a request. User is set only when
// the guard loaded the account from the store (cookie mode).
type Principal struct {
	UserID string
	Role   domain.Role
	User   *domain.User
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by the guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
