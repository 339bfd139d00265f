package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptsKeyPrefix = "login:failures:"

// LoginAttempts counts failed sign-ins per username in a fixed window that
// starts at the first failure.
type LoginAttempts struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewLoginAttempts blocks a username after max failures within window.
func NewLoginAttempts(client *redis.Client, max int, window time.Duration) *LoginAttempts {
	return &LoginAttempts{client: client, max: max, window: window}
}

// Blocked reports whether username has reached the failure limit.
func (a *LoginAttempts) Blocked(ctx context.Context, username string) (bool, error) {
	n, err := a.client.Get(ctx, attemptsKeyPrefix+username).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get login failures: %w", err)
	}
	return n >= a.max, nil
}

// RecordFailure increments the counter, starting the window on the first
// failure. The counter and its expiry are written in one transaction so a
// counter never exists without a TTL.
func (a *LoginAttempts) RecordFailure(ctx context.Context, username string) error {
	key := attemptsKeyPrefix + username
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, a.window)
		pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record login failure: %w", err)
	}
	return nil
}

// Reset forgets all failures for username.
func (a *LoginAttempts) Reset(ctx context.Context, username string) error {
	if err := a.client.Del(ctx, attemptsKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("redis reset login failures: %w", err)
	}
	return nil
}
