package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var greetingSchema = jsonschema.MustCompileString("greeting.json", `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1}
	}
}`)

type greeting struct {
	Name string `json:"name"`
}

func newTestBus(t *testing.T) *MemoryBus {
	t.Helper()
	b := NewMemoryBus(slog.New(slog.DiscardHandler), WithRequeueDelay(20*time.Millisecond))
	t.Cleanup(func() { b.Close() })
	return b
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var got atomic.Value
	_, err := b.Subscribe(ctx, "greetings", greetingSchema, func(_ context.Context, env Envelope) error {
		var g greeting
		if err := env.Decode(&g); err != nil {
			return err
		}
		got.Store(g.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "world"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return got.Load() != nil })
	if got.Load().(string) != "world" {
		t.Fatalf("got %v", got.Load())
	}
}

func TestPublishRejectsInvalidPayload(t *testing.T) {
	b := newTestBus(t)

	err := b.Publish(context.Background(), "greetings", greetingSchema, map[string]any{"name": ""})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvalidDeliveryIsDroppedNotRedelivered(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var calls atomic.Int64
	_, err := b.Subscribe(ctx, "greetings", greetingSchema, func(_ context.Context, env Envelope) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Bypass publisher-side validation: the publisher knows no schema for
	// this topic, only the subscriber does.
	if err := b.Publish(ctx, "greetings", nil, map[string]any{"unexpected": true}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Publish(ctx, "greetings", nil, greeting{Name: "after"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
	// Give the requeue delay a chance to fire if the invalid message was
	// wrongly scheduled for redelivery.
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
}

func TestHandlerFailureIsRedeliveredAfterDelay(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	var calls atomic.Int64
	_, err := b.Subscribe(ctx, "greetings", greetingSchema, func(_ context.Context, env Envelope) error {
		if calls.Add(1) == 1 {
			return errors.New("transient downstream failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "retry"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}

func TestRedeliverySurvivesFullQueue(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	gate := make(chan struct{})
	var flakyCalls atomic.Int64
	_, err := b.Subscribe(ctx, "greetings", greetingSchema, func(_ context.Context, env Envelope) error {
		var g greeting
		if err := env.Decode(&g); err != nil {
			return err
		}
		switch g.Name {
		case "flaky":
			if flakyCalls.Add(1) == 1 {
				return errors.New("transient downstream failure")
			}
		case "block":
			<-gate
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// The first delivery fails and schedules a redelivery. The blocked
	// handler then holds the worker while fillers pack the queue, so the
	// queue is full when the redelivery timer fires.
	if err := b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "flaky"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return flakyCalls.Load() == 1 })
	if err := b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "block"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	for i := 0; i < memoryQueueDepth; i++ {
		if err := b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "filler"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	// Let the requeue timer fire against the full queue before draining.
	time.Sleep(60 * time.Millisecond)
	close(gate)

	waitFor(t, 2*time.Second, func() bool { return flakyCalls.Load() >= 2 })
}

func TestOnceReturnsFirstPayload(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	data, err := b.Once(ctx, "greetings", greetingSchema, time.Second, func(ctx context.Context) error {
		return b.Publish(ctx, "greetings", greetingSchema, greeting{Name: "reply"})
	})
	if err != nil {
		t.Fatalf("Once() error = %v", err)
	}
	if data == nil {
		t.Fatal("expected a payload before the timeout")
	}

	var g greeting
	if err := (Envelope{Data: data, Topic: "greetings"}).Decode(&g); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if g.Name != "reply" {
		t.Fatalf("got %q", g.Name)
	}
	if n := b.SubscriberCount("greetings"); n != 0 {
		t.Fatalf("leaked %d subscribers", n)
	}
}

func TestOnceTimesOutWithNil(t *testing.T) {
	b := newTestBus(t)

	start := time.Now()
	data, err := b.Once(context.Background(), "greetings", greetingSchema, 30*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Once() error = %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil payload on timeout, got %s", data)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("returned before the timeout elapsed")
	}
	if n := b.SubscriberCount("greetings"); n != 0 {
		t.Fatalf("leaked %d subscribers", n)
	}
}

func TestOncePropagatesBeforePublishError(t *testing.T) {
	b := newTestBus(t)

	boom := errors.New("boom")
	_, err := b.Once(context.Background(), "greetings", greetingSchema, time.Second, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := b.SubscriberCount("greetings"); n != 0 {
		t.Fatalf("leaked %d subscribers", n)
	}
}

func TestClosedBusRejectsOperations(t *testing.T) {
	b := NewMemoryBus(slog.New(slog.DiscardHandler))
	b.Close()

	if err := b.Publish(context.Background(), "t", nil, greeting{Name: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish() error = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe(context.Background(), "t", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe() error = %v, want ErrClosed", err)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := newTestBus(t)

	sub, err := b.Subscribe(context.Background(), "greetings", greetingSchema, func(context.Context, Envelope) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe() error = %v", err)
	}
	if n := b.SubscriberCount("greetings"); n != 0 {
		t.Fatalf("leaked %d subscribers", n)
	}
}
