package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes to Kafka with acks from all in-sync replicas. Messages are keyed by
// aggregate id so one order's events stay on one partition.
type KafkaPublisher struct {
	w       messageWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		brokers: brokers,
		dial:    kafka.DialContext,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.Topic) == "" {
		return errors.New("kafka topic is required")
	}
	return p.w.WriteMessages(ctx, toKafkaMessage(msg))
}

// Ping dials the first reachable broker.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var errs error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", errs)
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func toKafkaMessage(msg Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	out := kafka.Message{
		Topic:   msg.Topic,
		Value:   msg.Payload,
		Headers: headers,
		Time:    time.Now().UTC(),
	}
	if msg.Key != "" {
		out.Key = []byte(msg.Key)
	}
	return out
}
