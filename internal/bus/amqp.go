package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/google/uuid"
)

// Exchange is the topic exchange all traffic flows through.
const Exchange = "amq.topic"

// AMQPBus implements Bus on a durable AMQP broker. Each subscribed topic
// gets a durable queue bound to the topic key on the shared exchange, so
// deliveries survive process restarts.
type AMQPBus struct {
	conn         *amqp.Connection
	requeueDelay time.Duration
	logger       *slog.Logger

	pubMu sync.Mutex
	pub   *amqp.Channel
}

// AMQPOption configures an AMQPBus.
type AMQPOption func(*AMQPBus)

// WithAMQPRequeueDelay overrides the delay before a failed delivery is
// negatively acknowledged back onto its queue.
func WithAMQPRequeueDelay(d time.Duration) AMQPOption {
	return func(b *AMQPBus) { b.requeueDelay = d }
}

// NewAMQPBus dials the broker and prepares the publish channel.
func NewAMQPBus(url string, logger *slog.Logger, opts ...AMQPOption) (*AMQPBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := pub.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	b := &AMQPBus{
		conn:         conn,
		requeueDelay: DefaultRequeueDelay,
		logger:       logger,
		pub:          pub,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Publish validates, seals and publishes a payload. Failures propagate to
// the caller; the bus does not retry publishes.
func (b *AMQPBus) Publish(ctx context.Context, topic string, schema *jsonschema.Schema, payload any) error {
	body, err := seal(topic, schema, payload)
	if err != nil {
		return err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err = b.pub.PublishWithContext(ctx, Exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe declares a durable queue for the topic and starts a manual-ack
// consumer on a dedicated channel.
func (b *AMQPBus) Subscribe(ctx context.Context, topic string, schema *jsonschema.Schema, handler Handler) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	queue, err := ch.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", topic, err)
	}
	if err := ch.QueueBind(queue.Name, topic, Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", topic, err)
	}

	tag := "parley-" + uuid.NewString()
	deliveries, err := ch.Consume(queue.Name, tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", topic, err)
	}

	go b.consume(topic, schema, handler, deliveries)

	return &amqpSub{ch: ch, tag: tag}, nil
}

// Once implements the synchronous request/response primitive.
func (b *AMQPBus) Once(ctx context.Context, topic string, schema *jsonschema.Schema, timeout time.Duration, beforePublish func(ctx context.Context) error) (json.RawMessage, error) {
	return once(ctx, b, topic, schema, timeout, beforePublish)
}

// Close closes the broker connection and with it every consumer channel.
func (b *AMQPBus) Close() error {
	return b.conn.Close()
}

func (b *AMQPBus) consume(topic string, schema *jsonschema.Schema, handler Handler, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		var env Envelope
		if err := json.Unmarshal(d.Body, &env); err != nil {
			b.logger.Error("dropping undecodable message",
				"topic", topic,
				"error", err)
			d.Ack(false)
			continue
		}

		err := validate(topic, schema, env.Data)
		if err == nil {
			err = handler(context.Background(), env)
		}
		switch {
		case err == nil:
			if ackErr := d.Ack(false); ackErr != nil {
				b.logger.Error("ack failed", "topic", topic, "error", ackErr)
			}
		case IsValidationError(err):
			// Malformed payloads can never become valid by retrying.
			b.logger.Error("dropping invalid message",
				"topic", topic,
				"error", err)
			d.Ack(false)
		default:
			b.logger.Error("handler failed, scheduling redelivery",
				"topic", topic,
				"delay", b.requeueDelay,
				"error", err)
			delivery := d
			time.AfterFunc(b.requeueDelay, func() {
				if b.conn.IsClosed() {
					return
				}
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					b.logger.Error("nack failed", "topic", topic, "error", nackErr)
				}
			})
		}
	}
}

type amqpSub struct {
	ch   *amqp.Channel
	tag  string
	once sync.Once
	err  error
}

func (s *amqpSub) Unsubscribe() error {
	s.once.Do(func() {
		if err := s.ch.Cancel(s.tag, false); err != nil {
			s.err = err
		}
		s.ch.Close()
	})
	return s.err
}
