package eventbus

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/vendcare-backend/pkg/pubsub"
)

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// PubSubPublisher publishes through Google Cloud Pub/Sub and waits for the server id.
// With ordering on, the aggregate id is the ordering key so one order's
// events are delivered in sequence.
type PubSubPublisher struct {
	client  *pubsub.Client
	ordered bool
	factory func(topic string) topicPublisher
}

func NewPubSubPublisher(client *pubsub.Client) *PubSubPublisher {
	return &PubSubPublisher{
		client:  client,
		ordered: client.Ordered(),
		factory: func(topic string) topicPublisher {
			pub := client.Publisher(topic)
			if pub == nil {
				return nil
			}
			return &gcpPublisher{Publisher: pub}
		},
	}
}

func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	pub := p.factory(msg.Topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", msg.Topic)
	}
	out := &gcppubsub.Message{
		Data:       msg.Payload,
		Attributes: msg.Attributes,
	}
	if p.ordered {
		out.OrderingKey = msg.Key
	}
	result := pub.Publish(ctx, out)
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", msg.Topic)
	}
	if _, err := result.Get(ctx); err != nil {
		// an ordered key stays paused after a failure until resumed
		if out.OrderingKey != "" {
			pub.ResumePublish(out.OrderingKey)
		}
		return err
	}
	return nil
}

func (p *PubSubPublisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return p.client.Ping(ctx)
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
