package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/utafrali/accounts/internal/auth"
	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/repository"
	apperrors "github.com/utafrali/accounts/pkg/errors"
	"github.com/utafrali/accounts/pkg/httputil"
	"github.com/utafrali/accounts/pkg/logger"
)

// Guard admits or rejects requests before they reach a handler. Rejections
// carry only a generic message.
type Guard struct {
	tokens   *auth.TokenIssuer
	sessions repository.SessionStore
	logger   *slog.Logger
}

// NewGuard creates a guard verifying tokens with tokens and resolving cookie
// sessions through sessions.
func NewGuard(tokens *auth.TokenIssuer, sessions repository.SessionStore, logger *slog.Logger) *Guard {
	return &Guard{tokens: tokens, sessions: sessions, logger: logger}
}

// RequireBearer admits requests carrying a valid access token in the
// Authorization header. The token's subject and role are trusted as is.
func (g *Guard) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, r)
			return
		}

		claims, err := g.tokens.Verify(token, auth.KindAccess)
		if err != nil {
			unauthorized(w, r)
			return
		}

		p := auth.Principal{UserID: claims.SubjectID, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(admit(r.Context(), p)))
	})
}

// RequireSession admits requests whose jwt cookie holds a valid refresh token
// that is still on record for its subject.
func (g *Guard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := refreshCookie(r)
		if token == "" {
			unauthorized(w, r)
			return
		}

		claims, err := g.tokens.Verify(token, auth.KindRefresh)
		if err != nil {
			unauthorized(w, r)
			return
		}

		user, err := g.sessions.GetByRefreshToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				httputil.WriteError(w, r, err, g.logger)
				return
			}
			unauthorized(w, r)
			return
		}
		if user.ID != claims.SubjectID {
			unauthorized(w, r)
			return
		}

		p := auth.Principal{UserID: user.ID, Role: user.Role, User: user}
		next.ServeHTTP(w, r.WithContext(admit(r.Context(), p)))
	})
}

// RequireRole admits principals holding one of roles. It must be mounted
// after RequireBearer or RequireSession.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !slices.Contains(roles, p.Role) {
				httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func admit(ctx context.Context, p auth.Principal) context.Context {
	ctx = auth.WithPrincipal(ctx, p)
	ctx = logger.WithUserID(ctx, p.UserID)
	return logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", p.UserID)))
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}

// principal returns the principal admitted by the guard.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
