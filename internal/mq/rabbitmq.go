package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dailyjudge/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes to and consumes from queues named after channels,
// using the default exchange.
type RabbitMQClient struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	durable bool
	cleanup bool

	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err == nil && cfg.PrefetchCount > 0 {
		err = ch.Qos(cfg.PrefetchCount, 0, false)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:     conn,
		ch:       ch,
		durable:  cfg.QueueDurable,
		cleanup:  cfg.QueueAutoDelete,
		declared: make(map[string]bool),
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := r.ensureQueue(channel); err != nil {
		return "", err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         attrs[AttrEventType],
		Headers:      make(amqp.Table, len(attrs)),
		Body:         data,
	}
	if r.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	for key, value := range attrs {
		msg.Headers[key] = value
	}

	if err := r.ch.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", err
	}
	return msg.MessageId, nil
}

// Subscribe consumes the queue until ctx ends or the broker closes the
// delivery stream. A failed message is requeued once; a redelivered message
// that fails again is discarded.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := r.ensureQueue(channel); err != nil {
		return err
	}

	tag := "dailyjudge-" + uuid.NewString()
	deliveries, err := r.ch.Consume(channel, tag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() { _ = r.ch.Cancel(tag, false) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq consumer %s: delivery channel closed", tag)
			}
			if err := handler(ctx, fromDelivery(d)); err != nil {
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) ensureQueue(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("rabbitmq channel is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.declared[name] {
		return nil
	}
	if _, err := r.ch.QueueDeclare(name, r.durable, r.cleanup, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

func fromDelivery(d amqp.Delivery) Message {
	msg := Message{ID: d.MessageId, Data: d.Body, PublishedAt: d.Timestamp}
	if len(d.Headers) > 0 {
		msg.Attributes = make(map[string]string, len(d.Headers))
		for key, value := range d.Headers {
			switch v := value.(type) {
			case string:
				msg.Attributes[key] = v
			case []byte:
				msg.Attributes[key] = string(v)
			default:
				msg.Attributes[key] = fmt.Sprint(v)
			}
		}
	}
	if d.Type != "" {
		if msg.Attributes == nil {
			msg.Attributes = make(map[string]string, 1)
		}
		msg.Attributes[AttrEventType] = d.Type
	}
	return msg
}
