package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const memoryQueueDepth = 256

// MemoryBus implements Bus in-process. It preserves the broker semantics
// the rest of the system depends on: per-subscriber queues, at-least-once
// delivery, ack-and-drop on validation failures, delayed requeue on any
// other handler failure.
type MemoryBus struct {
	requeueDelay time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

// MemoryOption configures a MemoryBus.
type MemoryOption func(*MemoryBus)

// WithRequeueDelay overrides the delay before a failed delivery is retried.
func WithRequeueDelay(d time.Duration) MemoryOption {
	return func(b *MemoryBus) { b.requeueDelay = d }
}

// NewMemoryBus creates an in-memory bus.
func NewMemoryBus(logger *slog.Logger, opts ...MemoryOption) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MemoryBus{
		requeueDelay: DefaultRequeueDelay,
		logger:       logger,
		subs:         make(map[string][]*memorySub),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type memorySub struct {
	bus     *MemoryBus
	topic   string
	schema  *jsonschema.Schema
	handler Handler
	queue   chan Envelope
	done    chan struct{}
	once    sync.Once
}

// Publish validates the payload and delivers it to every current
// subscriber of the topic.
func (b *MemoryBus) Publish(ctx context.Context, topic string, schema *jsonschema.Schema, payload any) error {
	body, err := seal(topic, schema, payload)
	if err != nil {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*memorySub, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.enqueue(ctx, env)
	}
	return nil
}

// Subscribe registers a consumer with its own delivery queue and worker.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, schema *jsonschema.Schema, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		bus:     b,
		topic:   topic,
		schema:  schema,
		handler: handler,
		queue:   make(chan Envelope, memoryQueueDepth),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	go sub.run()
	return sub, nil
}

// Once implements the synchronous request/response primitive.
func (b *MemoryBus) Once(ctx context.Context, topic string, schema *jsonschema.Schema, timeout time.Duration, beforePublish func(ctx context.Context) error) (json.RawMessage, error) {
	return once(ctx, b, topic, schema, timeout, beforePublish)
}

// Close stops all subscribers. Subsequent operations return ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	b.subs = make(map[string][]*memorySub)
	return nil
}

// SubscriberCount returns the number of live consumers on a topic, for
// diagnostics and leak checks.
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (s *memorySub) enqueue(ctx context.Context, env Envelope) {
	select {
	case <-s.done:
	case s.queue <- env:
	case <-ctx.Done():
	}
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.queue:
			s.deliver(env)
		}
	}
}

// deliver runs one envelope through validation and the handler, applying
// the ack-vs-requeue policy.
func (s *memorySub) deliver(env Envelope) {
	ctx := context.Background()

	err := validate(env.Topic, s.schema, env.Data)
	if err == nil {
		err = s.handler(ctx, env)
	}
	if err == nil {
		return
	}
	if IsValidationError(err) {
		s.bus.logger.Error("dropping invalid message",
			"topic", env.Topic,
			"error", err)
		return
	}

	s.bus.logger.Error("handler failed, scheduling redelivery",
		"topic", env.Topic,
		"delay", s.bus.requeueDelay,
		"error", err)
	// The send blocks until the queue has room so a full queue delays the
	// redelivery instead of losing the envelope.
	time.AfterFunc(s.bus.requeueDelay, func() {
		select {
		case <-s.done:
		case s.queue <- env:
		}
	})
}

// Unsubscribe removes the consumer. Safe to call more than once.
func (s *memorySub) Unsubscribe() error {
	s.stop()
	s.bus.remove(s)
	return nil
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}
