package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/channel/manager"
	"github.com/parleybot/parley/pkg/models"
)

// session is one live whatsmeow client.
type session struct {
	channelID string
	client    *whatsmeow.Client
	store     *sqlstore.Container
	events    chan manager.Event
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *session) Events() <-chan manager.Event { return s.events }

// SessionID is "<channelID>|<device JID>", empty until authenticated.
func (s *session) SessionID() string {
	id := s.client.Store.ID
	if id == nil {
		return ""
	}
	return s.channelID + "|" + id.ToNonAD().String()
}

// Send delivers a plain text message to the remote party.
func (s *session) Send(ctx context.Context, remoteID, text string) error {
	jid, err := types.ParseJID(remoteID)
	if err != nil {
		return fmt.Errorf("parse remote id %q: %w", remoteID, err)
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Logout invalidates the session upstream. WhatsApp deletes the device
// registration, so the credential store is useless afterwards.
func (s *session) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close disconnects and releases the credential store. Credentials stay
// on disk.
func (s *session) Close() error {
	s.markClosed()
	s.client.Disconnect()
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close credential store: %w", err)
	}
	return nil
}

// emit queues an event for the manager. Events arriving after close are
// dropped; a full buffer drops the event rather than blocking whatsmeow's
// dispatch goroutine.
func (s *session) emit(ev manager.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping event")
	}
}

// terminate delivers the final ClosedEvent and closes the stream.
func (s *session) terminate(cause manager.CloseCause) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	select {
	case s.events <- manager.ClosedEvent{Cause: cause}:
	default:
	}
	close(s.events)
}

// markClosed shuts the stream without a ClosedEvent, for manager-driven
// teardown.
func (s *session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *session) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		s.emit(manager.StatusEvent{State: channel.StateOpen})

	case *events.PairSuccess:
		s.emit(manager.CredentialsEvent{
			SessionID: s.channelID + "|" + v.ID.ToNonAD().String(),
		})

	case *events.Disconnected:
		// whatsmeow reconnects on its own; report the gap and wait.
		s.emit(manager.StatusEvent{State: channel.StateClose})

	case *events.StreamReplaced:
		s.logger.Warn("stream replaced, restart required")
		s.terminate(manager.CauseRestartRequired)

	case *events.LoggedOut:
		s.logger.Warn("logged out by WhatsApp", "reason", v.Reason)
		s.terminate(manager.CauseLoggedOut)

	case *events.Message:
		s.handleMessage(v)
	}
}

// handleMessage maps an inbound WhatsApp message onto the transport event
// shape. Non-text payloads (media, reactions, stickers) are forwarded as
// their JSON form so the bot layer still sees what arrived.
func (s *session) handleMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		raw, err := protojson.Marshal(evt.Message)
		if err != nil {
			s.logger.Warn("dropping unserializable message",
				"message_id", evt.Info.ID,
				"error", err)
			return
		}
		text = string(raw)
	}

	chat := evt.Info.Chat
	s.emit(manager.MessageEvent{
		RemoteID:    chat.ToNonAD().String(),
		RemoteName:  evt.Info.PushName,
		RemotePhone: chat.User,
		Text:        text,
		Broadcast:   chat.Server == types.BroadcastServer,
		Group:       evt.Info.IsGroup,
	})
}

// relayQR forwards pairing codes from the whatsmeow QR channel. The
// channel closes on its own once pairing succeeds or times out.
func (s *session) relayQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			s.emit(manager.PairingCodeEvent{
				Kind:    models.PairingVisualCode,
				Payload: item.Code,
			})
		case whatsmeow.QRChannelSuccess.Event:
			s.logger.Info("pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			s.logger.Warn("pairing timed out before a code was scanned")
		}
	}
}
