package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/accounts/internal/domain"
)

// Kind distinguishes access tokens from refresh tokens. Each kind is signed
// with its own secret and carries its kind in the "typ" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, wrong algorithm or kind, and
	// malformed or incomplete claims.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned once the current time reaches exp.
	ErrTokenExpired = errors.New("token expired")
)

// TokenConfig holds signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims is what a verified token asserts.
type Claims struct {
	SubjectID string
	Role      domain.Role
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role domain.Role `json:"role,omitempty"`
	Type Kind        `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// Option configures a TokenIssuer.
type Option func(*TokenIssuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *TokenIssuer) { i.now = now }
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig, opts ...Option) (*TokenIssuer, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("token issuer: access and refresh secrets are required")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("token issuer: lifetimes must be positive")
	}

	i := &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL is the lifetime of issued refresh tokens.
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken signs a short-lived token carrying the subject and role.
func (i *TokenIssuer) IssueAccessToken(subjectID string, role domain.Role) (Token, error) {
	return i.issue(KindAccess, subjectID, role, "")
}

// IssueRefreshToken signs a long-lived token carrying only the subject and a
// random jti, so two tokens issued in the same second still differ.
func (i *TokenIssuer) IssueRefreshToken(subjectID string) (Token, error) {
	return i.issue(KindRefresh, subjectID, "", uuid.NewString())
}

func (i *TokenIssuer) issue(kind Kind, subjectID string, role domain.Role, jti string) (Token, error) {
	if subjectID == "" {
		return Token{}, errors.New("issue token: empty subject")
	}

	// NumericDate has second precision; truncating keeps the returned
	// ExpiresAt identical to the exp claim.
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl(kind))

	claims := tokenClaims{
		Role: role,
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    i.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret(kind))
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks value's signature, algorithm, kind and expiry. A token is
// expired from the instant now == exp onwards.
func (i *TokenIssuer) Verify(value string, kind Kind) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(value, &tc, func(*jwt.Token) (any, error) {
		return i.secret(kind), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if tc.Type != kind || tc.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if kind == KindAccess && !tc.Role.Valid() {
		return nil, ErrTokenInvalid
	}

	return &Claims{
		SubjectID: tc.Subject,
		Role:      tc.Role,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

func (i *TokenIssuer) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return i.refreshSecret
	}
	return i.accessSecret
}

func (i *TokenIssuer) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		return i.refreshTTL
	}
	return i.accessTTL
}
