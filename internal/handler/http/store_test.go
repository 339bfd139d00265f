package http

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/internal/repository"
	apperrors "github.com/utafrali/accounts/pkg/errors"
)

// memStore is an in-memory UserRepository and SessionStore. Refresh tokens
// are kept as given.
type memStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

var (
	_ repository.UserRepository = (*memStore)(nil)
	_ repository.SessionStore   = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*domain.User)}
}

func (s *memStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return apperrors.AlreadyExists("user", "username", u.Username)
		}
		if existing.Email == u.Email {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.Username == username })
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool { return u.Email == email })
}

func (s *memStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(u *domain.User) bool {
		return (username != "" && u.Username == username) || (email != "" && u.Email == email)
	})
}

func (s *memStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	_, err := s.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *memStore) List(_ context.Context, offset, limit int) ([]domain.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (s *memStore) Update(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	cp := *u
	cp.PasswordHash = existing.PasswordHash
	cp.RefreshTokenHash = existing.RefreshTokenHash
	s.users[u.ID] = &cp
	return nil
}

func (s *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	u.PasswordHash = hash
	u.RefreshTokenHash = nil
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperrors.NotFound("user", id)
	}
	delete(s.users, id)
	return nil
}

func (s *memStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (s *memStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperrors.NotFound("user", userID)
	}
	u.RefreshTokenHash = &token
	return nil
}

func (s *memStore) GetByRefreshToken(_ context.Context, token string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, apperrors.ErrNotFound
	}
	return s.find(func(u *domain.User) bool {
		return u.RefreshTokenHash != nil && *u.RefreshTokenHash == token
	})
}

func (s *memStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.RefreshTokenHash = nil
	}
	return nil
}

func (s *memStore) RotateRefreshToken(_ context.Context, userID, presented, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.RefreshTokenHash == nil || *u.RefreshTokenHash != presented {
		return repository.ErrStaleRefreshToken
	}
	u.RefreshTokenHash = &next
	return nil
}

// setRole changes a stored user's role directly.
func (s *memStore) setRole(username string, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			u.Role = role
		}
	}
}

func (s *memStore) find(match func(*domain.User) bool) (*domain.User, error) {
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}
