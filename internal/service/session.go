package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/accounts/internal/auth"
	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/repository"
	apperrors "github.com/utafrali/accounts/pkg/errors"
)

// Client-facing messages. They never say which check failed.
const (
	msgInvalidCredentials = "invalid username or password"
	msgAuthRequired       = "authentication required"
	msgSessionRejected    = "refresh token rejected"
)

// Session is the result of a successful sign-in, refresh or resume.
// RefreshToken is empty on resume, which never rotates.
type Session struct {
	User         *domain.User
	AccessToken  auth.Token
	RefreshToken auth.Token
}

// SessionService implements sign-in, token refresh, resume, sign-out and
// password change.
type SessionService struct {
	users    repository.UserRepository
	sessions repository.SessionStore
	tokens   *auth.TokenIssuer
	hasher   *auth.PasswordHasher
	throttle LoginThrottle
	events   EventPublisher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// SessionDeps groups the collaborators of a SessionService. Throttle and
// Metrics are optional.
type SessionDeps struct {
	Users    repository.UserRepository
	Sessions repository.SessionStore
	Tokens   *auth.TokenIssuer
	Hasher   *auth.PasswordHasher
	Throttle LoginThrottle
	Events   EventPublisher
	Metrics  *Metrics
	Logger   *slog.Logger
}

// NewSessionService creates a session service.
func NewSessionService(deps SessionDeps) *SessionService {
	throttle := deps.Throttle
	if throttle == nil {
		throttle = noThrottle{}
	}
	return &SessionService{
		users:    deps.Users,
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		hasher:   deps.Hasher,
		throttle: throttle,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

// Login checks credentials and starts a session. Unknown usernames and wrong
// passwords fail identically.
func (s *SessionService) Login(ctx context.Context, username, password string) (*Session, error) {
	username = domain.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, apperrors.InvalidInput("username and password are required")
	}

	blocked, err := s.throttle.Blocked(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "login throttle unavailable",
			slog.String("error", err.Error()),
		)
	}
	if blocked {
		s.metrics.observe("login", outcomeThrottled)
		return nil, apperrors.RateLimited("too many failed sign-in attempts, try again later")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.metrics.observe("login", outcomeError)
			return nil, fmt.Errorf("get user for login: %w", err)
		}
		s.hasher.VerifyAbsent(password)
		s.loginFailed(ctx, username)
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.loginFailed(ctx, username)
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	sess, err := s.issuePair(user)
	if err != nil {
		s.metrics.observe("login", outcomeError)
		return nil, err
	}

	if err := s.sessions.SetRefreshToken(ctx, user.ID, sess.RefreshToken.Value); err != nil {
		s.metrics.observe("login", outcomeError)
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	if err := s.throttle.Reset(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login throttle",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.UserLoggedIn(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.logged_in event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.observe("login", outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return sess, nil
}

// Refresh exchanges the presented refresh token for a new pair. The token must
// still be the one on record; a superseded token is refused even while its
// signature is valid.
func (s *SessionService) Refresh(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		s.metrics.observe("refresh", outcomeUnauthorized)
		return nil, apperrors.Unauthorized(msgAuthRequired)
	}

	user, err := s.sessions.GetByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.metrics.observe("refresh", outcomeForbidden)
			return nil, apperrors.Forbidden(msgSessionRejected)
		}
		s.metrics.observe("refresh", outcomeError)
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}

	claims, err := s.tokens.Verify(token, auth.KindRefresh)
	if err != nil {
		s.metrics.observe("refresh", outcomeUnauthorized)
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}
	if claims.SubjectID != user.ID {
		s.logger.WarnContext(ctx, "refresh token subject mismatch",
			slog.String("user_id", user.ID),
		)
		s.metrics.observe("refresh", outcomeForbidden)
		return nil, apperrors.Forbidden(msgSessionRejected)
	}

	sess, err := s.issuePair(user)
	if err != nil {
		s.metrics.observe("refresh", outcomeError)
		return nil, err
	}

	if err := s.sessions.RotateRefreshToken(ctx, user.ID, token, sess.RefreshToken.Value); err != nil {
		if errors.Is(err, repository.ErrStaleRefreshToken) {
			s.metrics.observe("refresh", outcomeForbidden)
			return nil, apperrors.Forbidden(msgSessionRejected)
		}
		s.metrics.observe("refresh", outcomeError)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.metrics.observe("refresh", outcomeSuccess)
	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))

	return sess, nil
}

// Resume issues a fresh access token for a user already authenticated by
// their refresh cookie. The refresh token is left as it is.
func (s *SessionService) Resume(ctx context.Context, user *domain.User) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.logger.DebugContext(ctx, "session resumed", slog.String("user_id", user.ID))
	return &Session{User: user, AccessToken: access}, nil
}

// Logout clears the stored refresh token of whoever holds token. Unknown or
// empty tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	user, err := s.sessions.GetByRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up refresh token: %w", err)
	}

	if err := s.sessions.ClearRefreshToken(ctx, user.ID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", user.ID))
	return nil
}

// ChangePassword replaces the password of userID after checking the current
// one. Any outstanding refresh token is dropped.
func (s *SessionService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return apperrors.InvalidInput("current and new password are required")
	}
	if current == next {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, userID)
	}

	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", userID))
	return nil
}

func (s *SessionService) issuePair(user *domain.User) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SessionService) loginFailed(ctx context.Context, username string) {
	s.metrics.observe("login", outcomeInvalid)
	if err := s.throttle.RecordFailure(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			slog.String("error", err.Error()),
		)
	}
}
