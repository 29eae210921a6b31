package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes each message to a durable fanout exchange named by Message.Topic,
// using the event type as routing key.
type AMQPPublisher struct {
	conn        *amqp091.Connection
	openChannel func() (amqpChannel, error)

	mu       sync.Mutex
	declared map[string]bool
}

func NewAMQPPublisher(cfg config.AMQPConfig) (*AMQPPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	p := newAMQPPublisher(func() (amqpChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(open func() (amqpChannel, error)) *AMQPPublisher {
	return &AMQPPublisher{openChannel: open, declared: map[string]bool{}}
}

func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	exchange := strings.TrimSpace(msg.Topic)
	if exchange == "" {
		return errors.New("amqp exchange is required")
	}
	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := p.ensureExchange(ch, exchange); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, exchange, msg.Attributes[AttrEventType], false, false, toPublishing(msg))
}

func (p *AMQPPublisher) ensureExchange(ch amqpChannel, exchange string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[exchange] {
		return nil
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p.declared[exchange] = true
	return nil
}

func (p *AMQPPublisher) Ping(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func toPublishing(msg Message) amqp091.Publishing {
	headers := amqp091.Table{}
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.Attributes[AttrEventID],
		Type:         msg.Attributes[AttrEventType],
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         msg.Payload,
	}
}
