package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/accounts/internal/domain"
	pkgkafka "github.com/utafrali/accounts/pkg/kafka"
	"github.com/utafrali/accounts/pkg/logger"
)

// Topics for account events.
const (
	TopicUserRegistered = "account.user.registered"
	TopicUserUpdated    = "account.user.updated"
	TopicUserDeleted    = "account.user.deleted"
	TopicUserLoggedIn   = "account.user.logged_in"
)

const (
	aggregateTypeUser = "user"
	source            = "account-service"
)

// UserData is the payload of registered and updated events.
type UserData struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
}

// UserDeletedData is the payload of deleted events.
type UserDeletedData struct {
	ID string `json:"id"`
}

// UserLoggedInData is the payload of logged_in events.
type UserLoggedInData struct {
	ID         string    `json:"id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// Publisher writes an event envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer turns account changes into Kafka events.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer returns a Producer writing through pub.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// UserRegistered publishes account.user.registered.
func (p *Producer) UserRegistered(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, u.ID, userData(u))
}

// UserUpdated publishes account.user.updated.
func (p *Producer) UserUpdated(ctx context.Context, u *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, u.ID, userData(u))
}

// UserDeleted publishes account.user.deleted.
func (p *Producer) UserDeleted(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicUserDeleted, userID, UserDeletedData{ID: userID})
}

// UserLoggedIn publishes account.user.logged_in.
func (p *Producer) UserLoggedIn(ctx context.Context, userID string, at time.Time) error {
	return p.publish(ctx, TopicUserLoggedIn, userID, UserLoggedInData{ID: userID, LoggedInAt: at})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	ev, err := pkgkafka.NewEvent(topic, userID, aggregateTypeUser, source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	ev.CorrelationID = logger.CorrelationIDFromContext(ctx)

	if err := p.pub.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("user_id", userID),
	)
	return nil
}

func userData(u *domain.User) UserData {
	return UserData{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Noop discards events. It is used when Kafka is disabled.
type Noop struct{}

func (Noop) UserRegistered(context.Context, *domain.User) error    { return nil }
func (Noop) UserUpdated(context.Context, *domain.User) error       { return nil }
func (Noop) UserDeleted(context.Context, string) error             { return nil }
func (Noop) UserLoggedIn(context.Context, string, time.Time) error { return nil }
