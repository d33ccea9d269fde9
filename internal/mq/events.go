package mq

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Auth event topics.
const (
	TopicUserRegistered = "user.registered"
	TopicUserLoggedIn   = "user.loggedin"
	TopicOAuthLinked    = "user.oauth_linked"
	TopicUserDeleted    = "user.deleted"
)

// AuthEvent is the JSON payload published for every auth topic.
// Provider is set only for OAuth-originated events.
type AuthEvent struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Provider   string    `json:"provider,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher emits auth events to a broker. Publishing is
// best-effort: a broker failure is logged and never fails the request
// that triggered it. A nil backend disables publishing entirely.
type EventPublisher struct {
	backend Backend
	logger  *zap.Logger
}

func NewEventPublisher(backend Backend, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{backend: backend, logger: logger}
}

func (p *EventPublisher) UserRegistered(ctx context.Context, userID, email string) {
	p.publish(ctx, TopicUserRegistered, AuthEvent{UserID: userID, Email: email})
}

func (p *EventPublisher) UserLoggedIn(ctx context.Context, userID, email, provider string) {
	p.publish(ctx, TopicUserLoggedIn, AuthEvent{UserID: userID, Email: email, Provider: provider})
}

func (p *EventPublisher) OAuthLinked(ctx context.Context, userID, email, provider string) {
	p.publish(ctx, TopicOAuthLinked, AuthEvent{UserID: userID, Email: email, Provider: provider})
}

func (p *EventPublisher) UserDeleted(ctx context.Context, userID, email string) {
	p.publish(ctx, TopicUserDeleted, AuthEvent{UserID: userID, Email: email})
}

func (p *EventPublisher) publish(ctx context.Context, topic string, event AuthEvent) {
	if p == nil || p.backend == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode auth event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if _, err := p.backend.Publish(ctx, topic, data, map[string]string{"event": topic}); err != nil {
		p.logger.Warn("failed to publish auth event", zap.String("topic", topic), zap.Error(err))
	}
}

// Close closes the underlying backend if one is configured.
func (p *EventPublisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
