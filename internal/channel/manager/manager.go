// Package manager runs the connection lifecycle for one channel type. It
// keeps at most one live transport session per channel, answers pairing
// requests, bridges inbound traffic into the chat layer and delivers
// outbound events back to the transport.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/channel/pairing"
	"github.com/parleybot/parley/internal/chat"
	"github.com/parleybot/parley/internal/observability"
	"github.com/parleybot/parley/internal/storage"
	"github.com/parleybot/parley/pkg/models"
)

// DefaultPollInterval is how often an active pairing request checks the
// connection for a fresh pairing artifact.
const DefaultPollInterval = time.Second

// TypeRegistry is where the manager announces its transport at startup.
type TypeRegistry interface {
	RegisterChannelType(id, name string)
}

// Manager owns every live session of its transport's channel type.
type Manager struct {
	transport Transport
	bus       bus.Bus
	channels  storage.ChannelStore
	pairing   *pairing.Coordinator
	chats     *chat.Service
	registry  TypeRegistry
	metrics   *observability.Metrics
	logger    *slog.Logger

	pollInterval  time.Duration
	pairingWindow time.Duration

	keyed *keyedMutex

	mu      sync.Mutex
	conns   map[string]*connection
	subs    []bus.Subscription
	baseCtx context.Context
	started bool
}

// connection is one live session plus the latest pairing artifact it has
// produced.
type connection struct {
	channelID string
	session   Session

	mu      sync.Mutex
	pending *models.PairingData
}

func (c *connection) stash(data *models.PairingData) {
	c.mu.Lock()
	c.pending = data
	c.mu.Unlock()
}

func (c *connection) takePending() *models.PairingData {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := c.pending
	c.pending = nil
	return data
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the pairing poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithPairingWindow overrides how long a pairing request is served before
// the manager gives up waiting for an artifact.
func WithPairingWindow(d time.Duration) Option {
	return func(m *Manager) { m.pairingWindow = d }
}

// WithMetrics attaches the gateway metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// New creates a connection manager for the transport's channel type.
func New(transport Transport, b bus.Bus, channels storage.ChannelStore, coord *pairing.Coordinator, chats *chat.Service, registry TypeRegistry, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		transport:     transport,
		bus:           b,
		channels:      channels,
		pairing:       coord,
		chats:         chats,
		registry:      registry,
		logger:        logger.With("channel_type", transport.Type()),
		pollInterval:  DefaultPollInterval,
		pairingWindow: pairing.DefaultTimeout,
		keyed:         newKeyedMutex(),
		conns:         make(map[string]*connection),
		baseCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers the channel type, reconnects every paired channel and
// subscribes the manager to its topics. The context bounds the lifetime
// of every session the manager opens.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.baseCtx = ctx
	m.mu.Unlock()

	if m.registry != nil {
		m.registry.RegisterChannelType(m.transport.Type(), m.transport.DisplayName())
	}

	chans, err := m.channels.ListByType(ctx, m.transport.Type())
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range chans {
		if !ch.Paired() {
			continue
		}
		if err := m.AssertConnection(ctx, ch); err != nil {
			m.logger.Error("reconnect failed",
				"channel_id", ch.ID,
				"error", err)
		}
	}

	sub, err := m.pairing.OnPairingRequest(ctx, m.transport.Type(), m.handlePairingRequest)
	if err != nil {
		return fmt.Errorf("subscribe pairing requests: %w", err)
	}
	m.addSub(sub)

	sub, err = m.pairing.OnUnpair(ctx, m.transport.Type(), m.handleUnpair)
	if err != nil {
		return fmt.Errorf("subscribe unpair: %w", err)
	}
	m.addSub(sub)

	sub, err = m.chats.OnOutputEvent(ctx, m.transport.Type(), m.handleOutput)
	if err != nil {
		return fmt.Errorf("subscribe output events: %w", err)
	}
	m.addSub(sub)

	m.logger.Info("connection manager started", "channels", len(chans))
	return nil
}

// Stop unsubscribes from the bus and closes every live session without
// touching credentials or session bindings.
func (m *Manager) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			m.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	for _, id := range ids {
		m.closeConnection(id)
	}
}

// AssertConnection ensures a live session exists for the channel. A
// second assert for the same channel is a no-op while the first session
// is alive.
func (m *Manager) AssertConnection(ctx context.Context, ch *models.Channel) error {
	unlock := m.keyed.lock(ch.ID)
	defer unlock()

	m.mu.Lock()
	_, exists := m.conns[ch.ID]
	m.mu.Unlock()
	if exists {
		return nil
	}

	sess, err := m.transport.Open(ctx, ch)
	if err != nil {
		return fmt.Errorf("open session for %s: %w", ch.ID, err)
	}
	conn := &connection{channelID: ch.ID, session: sess}
	m.mu.Lock()
	m.conns[ch.ID] = conn
	runCtx := m.baseCtx
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveConnections.WithLabelValues(m.transport.Type()).Inc()
	}

	go m.run(runCtx, conn)
	return nil
}

// RemoveConnection tears the channel's session down for good: best-effort
// logout, close, local credential removal and session unbinding. Removing
// a channel with no live connection still clears credentials and the
// binding, so removal is idempotent.
func (m *Manager) RemoveConnection(ctx context.Context, channelID string) error {
	return m.remove(ctx, channelID, true)
}

func (m *Manager) remove(ctx context.Context, channelID string, logout bool) error {
	unlock := m.keyed.lock(channelID)
	defer unlock()

	conn := m.detach(channelID)
	var sessionID string
	if conn != nil {
		sessionID = conn.session.SessionID()
		if logout {
			if err := conn.session.Logout(ctx); err != nil {
				m.logger.Warn("logout failed",
					"channel_id", channelID,
					"error", err)
			}
		}
		if err := conn.session.Close(); err != nil {
			m.logger.Warn("close failed",
				"channel_id", channelID,
				"error", err)
		}
	}

	if err := m.transport.RemoveLocalState(channelID); err != nil {
		m.logger.Warn("remove local state failed",
			"channel_id", channelID,
			"error", err)
	}

	if sessionID == "" {
		if ch, err := m.channels.Get(ctx, channelID); err == nil && ch.Paired() {
			sessionID = *ch.SessionID
		}
	}
	if sessionID != "" {
		if _, err := m.pairing.UnbindSession(ctx, sessionID); err != nil {
			return fmt.Errorf("unbind session for %s: %w", channelID, err)
		}
	}
	m.logger.Info("connection removed", "channel_id", channelID)
	return nil
}

// closeConnection shuts the session down without touching credentials.
func (m *Manager) closeConnection(channelID string) {
	unlock := m.keyed.lock(channelID)
	defer unlock()

	conn := m.detach(channelID)
	if conn == nil {
		return
	}
	if err := conn.session.Close(); err != nil {
		m.logger.Warn("close failed",
			"channel_id", channelID,
			"error", err)
	}
}

// detach removes the connection from the registry and updates the gauge.
func (m *Manager) detach(channelID string) *connection {
	m.mu.Lock()
	conn, ok := m.conns[channelID]
	if ok {
		delete(m.conns, channelID)
	}
	m.mu.Unlock()
	if ok && m.metrics != nil {
		m.metrics.ActiveConnections.WithLabelValues(m.transport.Type()).Dec()
	}
	if !ok {
		return nil
	}
	return conn
}

func (m *Manager) get(channelID string) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[channelID]
}

func (m *Manager) addSub(sub bus.Subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
}

// run consumes a session's event stream until it closes. The context is
// captured when the session is registered so the loop never races a later
// Start.
func (m *Manager) run(ctx context.Context, conn *connection) {
	for ev := range conn.session.Events() {
		switch ev := ev.(type) {
		case MessageEvent:
			m.handleMessage(ctx, conn, ev)
		case StatusEvent:
			m.handleStatus(ctx, conn, ev.State)
		case PairingCodeEvent:
			conn.stash(&models.PairingData{
				ChannelID:   conn.channelID,
				ChannelType: m.transport.Type(),
				Kind:        ev.Kind,
				Payload:     ev.Payload,
			})
		case CredentialsEvent:
			if _, err := m.pairing.BindSession(ctx, conn.channelID, ev.SessionID); err != nil {
				m.logger.Error("bind session failed",
					"channel_id", conn.channelID,
					"error", err)
			}
		case ClosedEvent:
			m.handleClosed(ctx, conn, ev.Cause)
			return
		}
	}
	// The stream ended without a ClosedEvent. If the manager itself tore
	// the session down the registry no longer holds it; otherwise the
	// transport died on us and the connection is cleaned up as an
	// unexplained disconnect.
	if m.get(conn.channelID) == conn {
		m.handleClosed(ctx, conn, CauseUnknown)
	}
}

// handleMessage bridges one inbound message into the chat layer. Status
// broadcasts and group traffic are not bridged. A remote party without a
// display name is recorded under its phone number.
func (m *Manager) handleMessage(ctx context.Context, conn *connection, ev MessageEvent) {
	if ev.Broadcast || ev.Group {
		m.logger.Debug("ignoring non-direct message",
			"channel_id", conn.channelID,
			"broadcast", ev.Broadcast,
			"group", ev.Group)
		return
	}

	ch, err := m.channels.Get(ctx, conn.channelID)
	if err != nil {
		m.logger.Error("inbound message for unknown channel",
			"channel_id", conn.channelID,
			"error", err)
		return
	}
	contact := ev.RemotePhone
	if contact == "" {
		contact = ev.RemoteID
	}
	name := ev.RemoteName
	if name == "" {
		name = contact
	}
	c, err := m.chats.FindOrCreate(ctx, ch, ev.RemoteID, name, contact)
	if err != nil {
		m.logger.Error("resolve chat failed",
			"channel_id", conn.channelID,
			"error", err)
		return
	}
	if _, err := m.chats.CreateMessage(ctx, ch, c, models.SenderRecipient, ev.Text); err != nil {
		m.logger.Error("bridge inbound message failed",
			"chat_id", c.ID,
			"error", err)
		return
	}
	if m.metrics != nil {
		m.metrics.MessagesIn.WithLabelValues(m.transport.Type()).Inc()
	}
}

// handleStatus persists a connection state change. The record is only
// written, and the status-update only published, when the status actually
// changes. An open session with a known identity is bound to the channel.
func (m *Manager) handleStatus(ctx context.Context, conn *connection, state channel.ConnectionState) {
	ch, err := m.channels.Get(ctx, conn.channelID)
	if err != nil {
		m.logger.Error("status update for unknown channel",
			"channel_id", conn.channelID,
			"error", err)
		return
	}

	status := channel.StatusFor(state)
	if ch.Status != status {
		ch.Status = status
		if err := m.channels.Update(ctx, ch); err != nil {
			m.logger.Error("persist status failed",
				"channel_id", ch.ID,
				"error", err)
			return
		}
		update := models.StatusUpdateEvent{ChannelID: ch.ID, Status: status}
		if ch.SessionID != nil {
			update.SessionID = *ch.SessionID
		}
		topic := channel.TopicStatusUpdate(m.transport.Type(), ch.ID)
		if err := m.bus.Publish(ctx, topic, channel.StatusUpdateSchema, update); err != nil {
			m.logger.Error("publish status update failed",
				"channel_id", ch.ID,
				"error", err)
		}
		if m.metrics != nil {
			m.metrics.StatusTransitions.WithLabelValues(m.transport.Type(), string(status)).Inc()
		}
		m.logger.Info("channel status changed",
			"channel_id", ch.ID,
			"status", status)
	}

	if state == channel.StateOpen {
		if sid := conn.session.SessionID(); sid != "" {
			if _, err := m.pairing.BindSession(ctx, ch.ID, sid); err != nil {
				m.logger.Error("bind session failed",
					"channel_id", ch.ID,
					"error", err)
			}
		}
	}
}

// handleClosed reacts to the end of a session. A restart-required close
// reconnects with the same credentials; everything else removes the
// connection for good.
func (m *Manager) handleClosed(ctx context.Context, conn *connection, cause CloseCause) {
	m.logger.Info("session closed",
		"channel_id", conn.channelID,
		"cause", string(cause))

	switch cause {
	case CauseRestartRequired:
		m.closeConnection(conn.channelID)
		ch, err := m.channels.Get(ctx, conn.channelID)
		if err != nil {
			m.logger.Error("reconnect lookup failed",
				"channel_id", conn.channelID,
				"error", err)
			return
		}
		if err := m.AssertConnection(ctx, ch); err != nil {
			m.logger.Error("reconnect failed",
				"channel_id", conn.channelID,
				"error", err)
			return
		}
		if m.metrics != nil {
			m.metrics.Reconnects.WithLabelValues(m.transport.Type()).Inc()
		}
	case CauseLoggedOut:
		if err := m.remove(ctx, conn.channelID, false); err != nil {
			m.logger.Error("remove after logout failed",
				"channel_id", conn.channelID,
				"error", err)
		}
	default:
		if err := m.remove(ctx, conn.channelID, false); err != nil {
			m.logger.Error("remove after disconnect failed",
				"channel_id", conn.channelID,
				"error", err)
		}
	}
}

// handlePairingRequest serves one pairing request: make sure a session is
// up, then relay the first pairing artifact it produces. The handler
// returns once the artifact is sent, the session authenticates, or the
// pairing window closes.
func (m *Manager) handlePairingRequest(ctx context.Context, ch *models.Channel) error {
	if err := m.AssertConnection(ctx, ch); err != nil {
		if m.metrics != nil {
			m.metrics.PairingRequests.WithLabelValues(m.transport.Type(), "error").Inc()
		}
		return err
	}

	deadline := time.Now().Add(m.pairingWindow)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		conn := m.get(ch.ID)
		if conn == nil {
			// Connection torn down mid-pairing.
			if m.metrics != nil {
				m.metrics.PairingRequests.WithLabelValues(m.transport.Type(), "error").Inc()
			}
			return nil
		}
		if data := conn.takePending(); data != nil {
			if err := m.pairing.SendPairingData(ctx, data); err != nil {
				return fmt.Errorf("send pairing data for %s: %w", ch.ID, err)
			}
			if m.metrics != nil {
				m.metrics.PairingRequests.WithLabelValues(m.transport.Type(), "delivered").Inc()
			}
			return nil
		}
		if conn.session.SessionID() != "" {
			// Already authenticated, nothing to pair.
			return nil
		}
		if time.Now().After(deadline) {
			if m.metrics != nil {
				m.metrics.PairingRequests.WithLabelValues(m.transport.Type(), "timeout").Inc()
			}
			m.logger.Warn("pairing window elapsed without artifact",
				"channel_id", ch.ID)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// handleUnpair tears the session down after an unpair broadcast.
func (m *Manager) handleUnpair(ctx context.Context, ch *models.Channel) error {
	return m.remove(ctx, ch.ID, true)
}

// handleOutput delivers an outbound chat event on the transport. Delivery
// is best effort: a missing connection or a transport error is logged and
// the event dropped, never requeued.
func (m *Manager) handleOutput(ctx context.Context, ev *models.ChannelMessageEvent) error {
	if ev.Chat == nil || ev.Message == nil {
		return &bus.ValidationError{
			Topic: channel.TopicOutputEvent(m.transport.Type()),
			Err:   errors.New("output event missing chat or message"),
		}
	}

	channelID, remoteID, err := models.ParseChatInternalIdentifier(ev.Chat.InternalIdentifier)
	if err != nil {
		m.logger.Error("dropping output event",
			"chat_id", ev.Chat.ID,
			"error", err)
		return nil
	}

	conn := m.get(channelID)
	if conn == nil {
		m.logger.Warn("dropping output event for offline channel",
			"channel_id", channelID,
			"chat_id", ev.Chat.ID)
		if m.metrics != nil {
			m.metrics.MessagesOut.WithLabelValues(m.transport.Type(), "dropped").Inc()
		}
		return nil
	}
	if err := conn.session.Send(ctx, remoteID, ev.Message.Content); err != nil {
		m.logger.Error("transport send failed",
			"channel_id", channelID,
			"chat_id", ev.Chat.ID,
			"error", err)
		if m.metrics != nil {
			m.metrics.MessagesOut.WithLabelValues(m.transport.Type(), "dropped").Inc()
		}
		return nil
	}
	if m.metrics != nil {
		m.metrics.MessagesOut.WithLabelValues(m.transport.Type(), "sent").Inc()
	}
	return nil
}
