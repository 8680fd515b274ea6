// Package chat persists conversations and routes their messages over the
// bus. A message from the remote party becomes an input event for the bot
// runtime; a message from the user or the bot becomes an output event for
// the connection manager to deliver.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/storage"
	"github.com/parleybot/parley/pkg/models"
)

// ErrChatNotFound marks a chat lookup with no record.
var ErrChatNotFound = errors.New("chat not found")

// ErrInvalidSender marks a message with an unknown sender value.
var ErrInvalidSender = errors.New("invalid chat message sender")

// Service is the chat application service.
type Service struct {
	bus    bus.Bus
	chats  storage.ChatStore
	msgs   storage.MessageStore
	logger *slog.Logger
}

// NewService creates the chat service.
func NewService(b bus.Bus, chats storage.ChatStore, msgs storage.MessageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: b, chats: chats, msgs: msgs, logger: logger}
}

// FindByInternalIdentifier loads the chat keyed by a channel id and remote
// party identifier.
func (s *Service) FindByInternalIdentifier(ctx context.Context, identifier string) (*models.Chat, error) {
	c, err := s.chats.GetByInternalIdentifier(ctx, identifier)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	return c, err
}

// Create persists a chat for a channel and remote party.
func (s *Service) Create(ctx context.Context, ch *models.Channel, remoteID, name, contact string) (*models.Chat, error) {
	c := models.NewChat(ch.ID, models.ChatInternalIdentifier(ch.ID, remoteID), name, contact)
	if err := s.chats.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.Info("chat created",
		"chat_id", c.ID,
		"channel_id", ch.ID)
	return c, nil
}

// FindOrCreate returns the existing chat for a remote party, creating one
// on first contact.
func (s *Service) FindOrCreate(ctx context.Context, ch *models.Channel, remoteID, name, contact string) (*models.Chat, error) {
	c, err := s.FindByInternalIdentifier(ctx, models.ChatInternalIdentifier(ch.ID, remoteID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrChatNotFound) {
		return nil, err
	}
	return s.Create(ctx, ch, remoteID, name, contact)
}

// ListByChannel lists the channel's chats.
func (s *Service) ListByChannel(ctx context.Context, channelID string) ([]*models.Chat, error) {
	return s.chats.ListByChannel(ctx, channelID)
}

// History returns the chat's messages in creation order.
func (s *Service) History(ctx context.Context, chatID string) ([]*models.ChatMessage, error) {
	return s.msgs.ListByChat(ctx, chatID)
}

// CreateMessage persists a message and routes it. RECIPIENT messages go
// out as input events, USER and BOT messages as output events.
func (s *Service) CreateMessage(ctx context.Context, ch *models.Channel, c *models.Chat, sender models.ChatSender, content string) (*models.ChatMessage, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}
	msg := models.NewChatMessage(c.ID, sender, content)
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	topic := channel.TopicOutputEvent(ch.Type)
	if sender == models.SenderRecipient {
		topic = channel.TopicInputEvent(ch.Type)
	}
	event := models.ChannelMessageEvent{Channel: ch, Chat: c, Message: msg}
	if err := s.bus.Publish(ctx, topic, channel.MessageEventSchema, event); err != nil {
		return nil, fmt.Errorf("route message %s: %w", msg.ID, err)
	}
	return msg, nil
}

// OnOutputEvent subscribes to messages the chat layer wants delivered on a
// transport type.
func (s *Service) OnOutputEvent(ctx context.Context, channelType string, fn func(ctx context.Context, ev *models.ChannelMessageEvent) error) (bus.Subscription, error) {
	return s.subscribeEvents(ctx, channel.TopicOutputEvent(channelType), fn)
}

// OnInputEvent subscribes to messages arriving from a transport type.
func (s *Service) OnInputEvent(ctx context.Context, channelType string, fn func(ctx context.Context, ev *models.ChannelMessageEvent) error) (bus.Subscription, error) {
	return s.subscribeEvents(ctx, channel.TopicInputEvent(channelType), fn)
}

func (s *Service) subscribeEvents(ctx context.Context, topic string, fn func(ctx context.Context, ev *models.ChannelMessageEvent) error) (bus.Subscription, error) {
	return s.bus.Subscribe(ctx, topic, channel.MessageEventSchema, func(ctx context.Context, env bus.Envelope) error {
		var ev models.ChannelMessageEvent
		if err := env.Decode(&ev); err != nil {
			return err
		}
		return fn(ctx, &ev)
	})
}
