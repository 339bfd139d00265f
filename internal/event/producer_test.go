package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/accounts/internal/domain"
	pkgkafka "github.com/utafrali/accounts/pkg/kafka"
	"github.com/utafrali/accounts/pkg/logger"
)

type recordingPublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, ev *pkgkafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, ev)
	return nil
}

func newTestProducer(pub Publisher) *Producer {
	return NewProducer(pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProducer_UserRegistered(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	u := &domain.User{ID: "u-1", Username: "alice", Email: "alice@example.com", Role: domain.RoleUser, PasswordHash: "secret"}
	require.NoError(t, p.UserRegistered(ctx, u))

	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicUserRegistered, pub.topics[0])

	ev := pub.events[0]
	assert.Equal(t, TopicUserRegistered, ev.EventType)
	assert.Equal(t, "u-1", ev.AggregateID)
	assert.Equal(t, "user", ev.AggregateType)
	assert.Equal(t, "corr-1", ev.CorrelationID)

	var data UserData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, UserData{ID: "u-1", Username: "alice", Email: "alice@example.com", Role: domain.RoleUser}, data)
	assert.NotContains(t, string(ev.Data), "secret")
}

func TestProducer_Topics(t *testing.T) {
	pub := &recordingPublisher{}
	p := newTestProducer(pub)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, p.UserUpdated(ctx, &domain.User{ID: "u-1"}))
	require.NoError(t, p.UserDeleted(ctx, "u-1"))
	require.NoError(t, p.UserLoggedIn(ctx, "u-1", at))

	assert.Equal(t, []string{TopicUserUpdated, TopicUserDeleted, TopicUserLoggedIn}, pub.topics)

	var login UserLoggedInData
	require.NoError(t, pub.events[2].UnmarshalData(&login))
	assert.Equal(t, "u-1", login.ID)
	assert.True(t, at.Equal(login.LoggedInAt))
}

func TestProducer_PublishError(t *testing.T) {
	p := newTestProducer(&recordingPublisher{err: errors.New("broker down")})

	err := p.UserDeleted(context.Background(), "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicUserDeleted)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNoop(t *testing.T) {
	var n Noop
	ctx := context.Background()
	assert.NoError(t, n.UserRegistered(ctx, &domain.User{}))
	assert.NoError(t, n.UserUpdated(ctx, &domain.User{}))
	assert.NoError(t, n.UserDeleted(ctx, "x"))
	assert.NoError(t, n.UserLoggedIn(ctx, "x", time.Now()))
}
