package mq

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/agentplan/apiserver/config"
)

// PubSubClient wraps the Google Cloud Pub/Sub SDK client. Event names
// map to topics; Pub/Sub forbids dots in topic IDs so they are
// flattened to dashes and prefixed.
type PubSubClient struct {
	client      *pubsub.Client
	topicPrefix string
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{client: client, topicPrefix: cfg.TopicPrefix}, nil
}

// Publish sends a message to the topic derived from the event name.
func (p *PubSubClient) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errors.New("pubsub topic is required")
	}

	t, err := p.ensureTopic(ctx, p.topicID(topic))
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return result.Get(ctx)
}

// Subscribe consumes messages from the topic derived from the event name.
func (p *PubSubClient) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("pubsub topic is required")
	}

	topicID := p.topicID(topic)
	t, err := p.ensureTopic(ctx, topicID)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, topicID+"-sub", t)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		message := Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		}
		if err := handler(ctx, message); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) topicID(topic string) string {
	id := strings.ReplaceAll(topic, ".", "-")
	if p.topicPrefix != "" {
		return p.topicPrefix + "-" + id
	}
	return id
}

func (p *PubSubClient) ensureTopic(ctx context.Context, id string) (*pubsub.Topic, error) {
	topic := p.client.Topic(id)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, id)
	}
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, id string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(id)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, id, pubsub.SubscriptionConfig{Topic: topic})
	}
	return sub, nil
}
