package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/repository"
	"github.com/utafrali/accounts/pkg/database"
	apperrors "github.com/utafrali/accounts/pkg/errors"
)

// SessionStore implements repository.SessionStore on the users table. Only
// the SHA-256 digest of a refresh token is written.
type SessionStore struct {
	db database.DBTX
}

// NewSessionStore returns a store over db.
func NewSessionStore(db database.DBTX) *SessionStore {
	return &SessionStore{db: db}
}

var (
	_ repository.SessionStore   = (*SessionStore)(nil)
	_ repository.UserRepository = (*UserRepository)(nil)
)

// SetRefreshToken overwrites the user's refresh slot.
func (s *SessionStore) SetRefreshToken(ctx context.Context, userID, token string) (err error) {
	const query = `UPDATE users SET refresh_token_hash = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "SetRefreshToken", query)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, query, hashToken(token), userID); err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// GetByID fetches the user by primary key.
func (s *SessionStore) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	return getOne(ctx, s.db, "GetUserByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// GetByRefreshToken finds the user whose slot holds token.
func (s *SessionStore) GetByRefreshToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperrors.ErrNotFound
	}
	return getOne(ctx, s.db, "GetUserByRefreshToken",
		`SELECT `+userColumns+` FROM users WHERE refresh_token_hash = $1`, hashToken(token))
}

// ClearRefreshToken sets the slot to NULL.
func (s *SessionStore) ClearRefreshToken(ctx context.Context, userID string) (err error) {
	const query = `UPDATE users SET refresh_token_hash = NULL WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "ClearRefreshToken", query)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken swaps presented for next in a single conditional UPDATE,
// so of two concurrent rotations with the same token only one matches a row.
func (s *SessionStore) RotateRefreshToken(ctx context.Context, userID, presented, next string) (err error) {
	const query = `
		UPDATE users SET refresh_token_hash = $1
		WHERE id = $2 AND refresh_token_hash = $3`

	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", query)
	defer func() { end(err) }()

	ct, err := s.db.Exec(ctx, query, hashToken(next), userID, hashToken(presented))
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrStaleRefreshToken
	}
	return nil
}

// hashToken returns the hex SHA-256 of token.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
