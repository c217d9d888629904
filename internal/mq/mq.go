package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dailyjudge/apiserver/config"
	"go.uber.org/zap"
)

// Message represents a broker-agnostic payload delivered to subscribers.
// PublishedAt is zero when the broker did not record it.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishedAt time.Time
}

// AttrEventType is the attribute naming the kind of event a message carries.
const AttrEventType = "event_type"

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
	logger  *zap.Logger
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend, logger *zap.Logger) *MQ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQ{backend: backend, logger: logger}
}

// Open connects to the backend named in cfg. It returns nil and no error when
// the backend is "none" or empty, meaning events are not published.
func Open(ctx context.Context, cfg config.MQConfig, logger *zap.Logger) (*MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		backend, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return New(backend, logger), nil
	case "pubsub":
		backend, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return New(backend, logger), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id, err := m.backend.Publish(ctx, channel, data, attrs)
	if err != nil {
		return "", err
	}
	m.logger.Debug("message published", zap.String("channel", channel), zap.String("message_id", id))
	return id, nil
}

// Subscribe consumes messages from the named channel. Handler failures are
// logged before the backend nacks the message.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		if err := handler(ctx, msg); err != nil {
			m.logger.Error("message handler failed",
				zap.String("channel", channel),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
