// Package eventbus fans outbox rows out to the configured broker.
package eventbus

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/pubsub"
)

// Message is one event bound for a topic (Kafka topic, Pub/Sub topic or AMQP exchange).
type Message struct {
	Topic      string
	Key        string
	Payload    []byte
	Attributes map[string]string
}

// Publisher delivers messages synchronously; a nil error means the broker acknowledged.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Ping(ctx context.Context) error
	Close() error
}

// Attribute keys carried on every message.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// New builds the publisher selected by VENDCARE_EVENTBUS_DRIVER.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	driver := cfg.EventBus.Normalized()
	var (
		pub Publisher
		err error
	)
	switch driver {
	case config.EventBusKafka:
		pub, err = NewKafkaPublisher(cfg.Kafka)
	case config.EventBusAMQP:
		pub, err = NewAMQPPublisher(cfg.AMQP)
	case config.EventBusPubSub:
		var client *pubsub.Client
		client, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err == nil {
			pub = NewPubSubPublisher(client)
		}
	default:
		return nil, fmt.Errorf("unsupported event bus driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s event bus: %w", driver, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", driver), "event bus initialized")
	}
	return pub, nil
}
