package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/utafrali/accounts/internal/domain"
	"github.com/utafrali/accounts/pkg/breaker"
)

// GuardedThrottle routes throttle calls through a circuit breaker. While the
// breaker is open sign-ins are not throttled.
type GuardedThrottle struct {
	next    LoginThrottle
	breaker *breaker.Breaker
}

// NewGuardedThrottle wraps next with b.
func NewGuardedThrottle(next LoginThrottle, b *breaker.Breaker) *GuardedThrottle {
	return &GuardedThrottle{next: next, breaker: b}
}

func (g *GuardedThrottle) Blocked(ctx context.Context, username string) (bool, error) {
	var blocked bool
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		blocked, err = g.next.Blocked(ctx, username)
		return err
	})
	if errors.Is(err, breaker.ErrOpen) {
		return false, nil
	}
	return blocked, err
}

func (g *GuardedThrottle) RecordFailure(ctx context.Context, username string) error {
	return skipWhenOpen(g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.RecordFailure(ctx, username)
	}))
}

func (g *GuardedThrottle) Reset(ctx context.Context, username string) error {
	return skipWhenOpen(g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.Reset(ctx, username)
	}))
}

// GuardedEvents routes event publishing through a circuit breaker. While the
// breaker is open events are dropped with a warning.
type GuardedEvents struct {
	next    EventPublisher
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewGuardedEvents wraps next with b.
func NewGuardedEvents(next EventPublisher, b *breaker.Breaker, logger *slog.Logger) *GuardedEvents {
	return &GuardedEvents{next: next, breaker: b, logger: logger}
}

func (g *GuardedEvents) UserRegistered(ctx context.Context, u *domain.User) error {
	return g.publish(ctx, "user.registered", func(ctx context.Context) error {
		return g.next.UserRegistered(ctx, u)
	})
}

func (g *GuardedEvents) UserUpdated(ctx context.Context, u *domain.User) error {
	return g.publish(ctx, "user.updated", func(ctx context.Context) error {
		return g.next.UserUpdated(ctx, u)
	})
}

func (g *GuardedEvents) UserDeleted(ctx context.Context, userID string) error {
	return g.publish(ctx, "user.deleted", func(ctx context.Context) error {
		return g.next.UserDeleted(ctx, userID)
	})
}

func (g *GuardedEvents) UserLoggedIn(ctx context.Context, userID string, at time.Time) error {
	return g.publish(ctx, "user.logged_in", func(ctx context.Context) error {
		return g.next.UserLoggedIn(ctx, userID, at)
	})
}

func (g *GuardedEvents) publish(ctx context.Context, event string, fn func(context.Context) error) error {
	err := g.breaker.Do(ctx, fn)
	if errors.Is(err, breaker.ErrOpen) {
		g.logger.WarnContext(ctx, "event publisher unavailable, dropping event",
			slog.String("event", event),
			slog.String("breaker", g.breaker.Name()),
		)
		return nil
	}
	return err
}

func skipWhenOpen(err error) error {
	if errors.Is(err, breaker.ErrOpen) {
		return nil
	}
	return err
}
