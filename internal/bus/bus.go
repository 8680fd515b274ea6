// Package bus provides the topic publish/subscribe transport every core
// component communicates over. Two implementations share one contract: an
// AMQP bus backed by a durable broker for production, and an in-memory bus
// with the same delivery semantics for tests and single-process runs.
//
// Delivery is at-least-once and unordered across topics. Handlers must be
// idempotent with respect to duplicate delivery.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DefaultRequeueDelay is the wait before a broker redelivers a message
// whose handler failed with a non-validation error.
const DefaultRequeueDelay = 30 * time.Second

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus: closed")
)

// Envelope wraps every payload carried on a topic.
type Envelope struct {
	Data   json.RawMessage `json:"data"`
	Topic  string          `json:"topic"`
	SentAt time.Time       `json:"sentAt"`
}

// Decode unmarshals the envelope data into v, returning a ValidationError
// on malformed payloads so the bus acknowledges instead of requeueing.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &ValidationError{Topic: e.Topic, Err: err}
	}
	return nil
}

// Handler consumes one delivered envelope. Returning a validation error
// acknowledges (drops) the message; returning any other error leaves it
// unacknowledged for delayed redelivery.
type Handler func(ctx context.Context, env Envelope) error

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe cancels the consumer. Safe to call more than once.
	Unsubscribe() error
}

// Bus is the topic transport contract.
type Bus interface {
	// Publish validates payload against the topic schema, wraps it in an
	// envelope and hands it to the broker. Publish failures propagate to
	// the caller and are not retried.
	Publish(ctx context.Context, topic string, schema *jsonschema.Schema, payload any) error

	// Subscribe registers a durable consumer on a topic. Each delivered
	// envelope is schema-validated before the handler runs.
	Subscribe(ctx context.Context, topic string, schema *jsonschema.Schema, handler Handler) (Subscription, error)

	// Once subscribes to a topic, runs beforePublish (typically to trigger
	// the counterpart into publishing its reply), then waits for the first
	// message. It returns (nil, nil) when the timeout elapses first. The
	// temporary subscription is always unsubscribed before returning.
	Once(ctx context.Context, topic string, schema *jsonschema.Schema, timeout time.Duration, beforePublish func(ctx context.Context) error) (json.RawMessage, error)

	// Close tears down the underlying connection.
	Close() error
}

// ValidationError marks a payload that does not match the topic's expected
// shape. Such messages are acknowledged and dropped: they can never become
// valid by retrying.
type ValidationError struct {
	Topic string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bus: invalid payload on %s: %v", e.Topic, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError classifies a handler error for the ack-vs-requeue
// decision.
func IsValidationError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var se *jsonschema.ValidationError
	return errors.As(err, &se)
}

// validate checks raw JSON data against a compiled schema. A nil schema
// skips validation.
func validate(topic string, schema *jsonschema.Schema, data json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ValidationError{Topic: topic, Err: err}
	}
	if err := schema.Validate(v); err != nil {
		return &ValidationError{Topic: topic, Err: err}
	}
	return nil
}

// seal validates and wraps a payload into an encoded envelope.
func seal(topic string, schema *jsonschema.Schema, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	if err := validate(topic, schema, data); err != nil {
		return nil, err
	}
	env := Envelope{Data: data, Topic: topic, SentAt: time.Now().UTC()}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for %s: %w", topic, err)
	}
	return body, nil
}
