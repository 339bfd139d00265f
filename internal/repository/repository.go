package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/accounts/internal/domain"
)

// ErrStaleRefreshToken is returned by RotateRefreshToken when the presented
// token is no longer the one on record.
var ErrStaleRefreshToken = errors.New("refresh token superseded")

// UserRepository persists user accounts. Lookups return apperrors.ErrNotFound
// when no row matches.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindByUsernameOrEmail returns the first user matching either value.
	// Empty arguments are ignored.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// List returns one page of users ordered by creation time and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)

	// Update writes profile fields and role. Credentials and the refresh
	// slot are untouched.
	Update(ctx context.Context, user *domain.User) error

	// UpdatePassword replaces the password hash and clears the refresh slot.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	Delete(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore keeps the single live refresh token of each user. Tokens are
// compared by value; how they are stored is up to the implementation.
type SessionStore interface {
	// SetRefreshToken overwrites the slot unconditionally.
	SetRefreshToken(ctx context.Context, userID, token string) error

	GetByID(ctx context.Context, userID string) (*domain.User, error)

	// GetByRefreshToken returns the user currently holding token.
	GetByRefreshToken(ctx context.Context, token string) (*domain.User, error)

	// ClearRefreshToken empties the slot. Clearing an empty slot or a
	// missing user is not an error.
	ClearRefreshToken(ctx context.Context, userID string) error

	// RotateRefreshToken replaces presented with next only if presented is
	// still on record, otherwise ErrStaleRefreshToken.
	RotateRefreshToken(ctx context.Context, userID, presented, next string) error
}
