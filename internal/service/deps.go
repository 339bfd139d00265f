package service

import (
	"context"
	"time"

	"github.com/utafrali/accounts/internal/domain"
)

// EventPublisher emits account domain events. Publishing failures are logged
// and never fail the calling operation.
type EventPublisher interface {
	UserRegistered(ctx context.Context, u *domain.User) error
	UserUpdated(ctx context.Context, u *domain.User) error
	UserDeleted(ctx context.Context, userID string) error
	UserLoggedIn(ctx context.Context, userID string, at time.Time) error
}

// LoginThrottle tracks failed sign-ins per username.
type LoginThrottle interface {
	Blocked(ctx context.Context, username string) (bool, error)
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// noThrottle never blocks. It stands in when Redis is disabled.
type noThrottle struct{}

func (noThrottle) Blocked(context.Context, string) (bool, error) { return false, nil }
func (noThrottle) RecordFailure(context.Context, string) error   { return nil }
func (noThrottle) Reset(context.Context, string) error           { return nil }
