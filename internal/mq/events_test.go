package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingBackend struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (b *recordingBackend) Publish(_ context.Context, topic string, data []byte, _ map[string]string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, data)
	return "msg-1", nil
}

func (b *recordingBackend) Subscribe(context.Context, string, Handler) error { return nil }
func (b *recordingBackend) Close() error                                     { return nil }

func TestEventPublisherEncodesPayload(t *testing.T) {
	backend := &recordingBackend{}
	pub := NewEventPublisher(backend, nil)

	pub.UserLoggedIn(context.Background(), "user-1", "x@y.com", "github")

	if len(backend.topics) != 1 || backend.topics[0] != TopicUserLoggedIn {
		t.Fatalf("topics = %v", backend.topics)
	}
	var event AuthEvent
	if err := json.Unmarshal(backend.payloads[0], &event); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if event.UserID != "user-1" || event.Email != "x@y.com" || event.Provider != "github" {
		t.Errorf("unexpected event %+v", event)
	}
	if event.OccurredAt.IsZero() {
		t.Error("occurred_at must be stamped")
	}
}

func TestEventPublisherSwallowsBrokerErrors(t *testing.T) {
	pub := NewEventPublisher(&recordingBackend{err: errors.New("broker down")}, nil)
	// Must not panic or surface the error.
	pub.UserRegistered(context.Background(), "user-1", "x@y.com")
}

func TestEventPublisherNilBackendIsNoop(t *testing.T) {
	pub := NewEventPublisher(nil, nil)
	pub.UserDeleted(context.Background(), "user-1", "x@y.com")
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
