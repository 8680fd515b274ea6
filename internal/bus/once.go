package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// once is the shared request/response primitive both bus implementations
// expose as Once. It is the only construct in the system that turns async
// pub/sub into a synchronous call: subscribe, optionally trigger the
// counterpart, wait for the first message, give up after the timeout.
func once(ctx context.Context, b Bus, topic string, schema *jsonschema.Schema, timeout time.Duration, beforePublish func(ctx context.Context) error) (json.RawMessage, error) {
	first := make(chan json.RawMessage, 1)

	sub, err := b.Subscribe(ctx, topic, schema, func(_ context.Context, env Envelope) error {
		select {
		case first <- env.Data:
		default: // already fulfilled, duplicate delivery
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if beforePublish != nil {
		if err := beforePublish(ctx); err != nil {
			return nil, err
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-first:
		return data, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
