// Package pairing coordinates the handshake that binds a transport
// session to a channel. The side that wants a session (API, CLI) and the
// side that can produce one (a connection manager) only ever meet over
// the bus, so both halves of the exchange live here.
package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/storage"
	"github.com/parleybot/parley/pkg/models"
)

// DefaultTimeout is how long a pairing request waits for a transport to
// answer with pairing data.
const DefaultTimeout = 60 * time.Second

// ErrPairingTimedOut is returned when no transport produced pairing data
// within the request window.
var ErrPairingTimedOut = errors.New("pairing request timed out")

// Coordinator runs both sides of the pairing handshake and owns the
// session binding on the channel record.
type Coordinator struct {
	bus      bus.Bus
	channels storage.ChannelStore
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the pairing request window.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator creates a pairing coordinator.
func NewCoordinator(b bus.Bus, channels storage.ChannelStore, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		bus:      b,
		channels: channels,
		timeout:  DefaultTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestPairing broadcasts a pairing request for the channel and waits
// for the first pairing artifact published back on the channel-scoped
// pairing-data topic. The subscription is in place before the request
// goes out, so the answer cannot race past us.
func (c *Coordinator) RequestPairing(ctx context.Context, channelID string) (*models.PairingData, error) {
	ch, err := c.loadChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	topic := channel.TopicPairingData(ch.Type, ch.ID)
	raw, err := c.bus.Once(ctx, topic, channel.PairingDataSchema, c.timeout, func(ctx context.Context) error {
		return c.bus.Publish(ctx, channel.TopicRequestPairing(ch.Type), channel.ChannelSchema, ch)
	})
	if err != nil {
		return nil, fmt.Errorf("request pairing for %s: %w", ch.ID, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: channel %s", ErrPairingTimedOut, ch.ID)
	}
	var data models.PairingData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode pairing data for %s: %w", ch.ID, err)
	}
	return &data, nil
}

func (c *Coordinator) loadChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	ch, err := c.channels.Get(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, channel.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}
	return ch, nil
}

// OnPairingRequest subscribes the connection-manager side to pairing
// requests for a transport type.
func (c *Coordinator) OnPairingRequest(ctx context.Context, channelType string, fn func(ctx context.Context, ch *models.Channel) error) (bus.Subscription, error) {
	return c.bus.Subscribe(ctx, channel.TopicRequestPairing(channelType), channel.ChannelSchema, func(ctx context.Context, env bus.Envelope) error {
		var ch models.Channel
		if err := env.Decode(&ch); err != nil {
			return err
		}
		return fn(ctx, &ch)
	})
}

// OnUnpair subscribes the connection-manager side to unpair broadcasts
// for a transport type.
func (c *Coordinator) OnUnpair(ctx context.Context, channelType string, fn func(ctx context.Context, ch *models.Channel) error) (bus.Subscription, error) {
	return c.bus.Subscribe(ctx, channel.TopicUnpair(channelType), channel.ChannelSchema, func(ctx context.Context, env bus.Envelope) error {
		var ch models.Channel
		if err := env.Decode(&ch); err != nil {
			return err
		}
		return fn(ctx, &ch)
	})
}

// SendPairingData delivers a pairing artifact to whoever requested it.
func (c *Coordinator) SendPairingData(ctx context.Context, data *models.PairingData) error {
	topic := channel.TopicPairingData(data.ChannelType, data.ChannelID)
	return c.bus.Publish(ctx, topic, channel.PairingDataSchema, data)
}

// BindSession records the transport session on the channel. Rebinding
// the same session is a no-op so reconnects do not churn the record.
func (c *Coordinator) BindSession(ctx context.Context, channelID, sessionID string) (*models.Channel, error) {
	ch, err := c.loadChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch.SessionID != nil && *ch.SessionID == sessionID {
		return ch, nil
	}
	ch.SessionID = &sessionID
	if err := c.channels.Update(ctx, ch); err != nil {
		return nil, fmt.Errorf("bind session to %s: %w", channelID, err)
	}
	c.logger.Info("session bound",
		"channel_id", channelID,
		"session_id", sessionID)
	return ch, nil
}

// UnbindSession clears the session binding and forces the channel back to
// DISCONNECTED. A session no channel holds is not an error: unbinding is
// idempotent and returns (nil, nil) in that case.
func (c *Coordinator) UnbindSession(ctx context.Context, sessionID string) (*models.Channel, error) {
	ch, err := c.channels.GetBySessionID(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch.SessionID = nil
	ch.Status = models.StatusDisconnected
	if err := c.channels.Update(ctx, ch); err != nil {
		return nil, fmt.Errorf("unbind session %s: %w", sessionID, err)
	}
	c.logger.Info("session unbound",
		"channel_id", ch.ID,
		"session_id", sessionID)
	return ch, nil
}

// Unpair tears down the channel's session. On an unpaired channel it does
// nothing and publishes nothing. Otherwise it broadcasts the unpair so
// the owning connection manager logs the transport out, then clears the
// binding locally.
func (c *Coordinator) Unpair(ctx context.Context, channelID string) error {
	ch, err := c.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.Paired() {
		return nil
	}
	sessionID := *ch.SessionID
	if err := c.bus.Publish(ctx, channel.TopicUnpair(ch.Type), channel.ChannelSchema, ch); err != nil {
		return fmt.Errorf("broadcast unpair for %s: %w", ch.ID, err)
	}
	if _, err := c.UnbindSession(ctx, sessionID); err != nil {
		return err
	}
	return nil
}
