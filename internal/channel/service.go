package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/storage"
	"github.com/parleybot/parley/pkg/models"
)

// ChannelType describes a transport kind a connection manager has
// registered as available.
type ChannelType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service manages channel records and the registry of available channel
// types. Connection managers register their type at start-up; channels can
// only be created for registered types.
type Service struct {
	bus    bus.Bus
	stores storage.StoreSet
	logger *slog.Logger

	mu    sync.RWMutex
	types []ChannelType
}

// NewService creates the channel application service.
func NewService(b bus.Bus, stores storage.StoreSet, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bus: b, stores: stores, logger: logger}
}

// RegisterChannelType makes a transport kind available for channel
// creation. Registering the same id twice is a no-op.
func (s *Service) RegisterChannelType(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.types {
		if t.ID == id {
			return
		}
	}
	s.types = append(s.types, ChannelType{ID: id, Name: name})
}

// AvailableTypes returns the registered channel types.
func (s *Service) AvailableTypes() []ChannelType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelType, len(s.types))
	copy(out, s.types)
	return out
}

// CreateChannelInput carries the fields needed to create a channel.
type CreateChannelInput struct {
	Name    string
	Contact string
	Type    string
	UserID  string
	BotID   string
}

// Create validates the bindings, persists a new channel in the initial
// DISCONNECTED state and announces it on the created topic.
func (s *Service) Create(ctx context.Context, in CreateChannelInput) (*models.Channel, error) {
	if err := s.validateBindings(ctx, in.Type, in.UserID, in.BotID); err != nil {
		return nil, err
	}

	ch := models.NewChannel(in.Name, in.Contact, in.Type, in.UserID, in.BotID)
	if err := s.stores.Channels.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	if err := s.bus.Publish(ctx, TopicCreated(ch.Type), ChannelSchema, ch); err != nil {
		return nil, fmt.Errorf("announce channel: %w", err)
	}
	s.logger.Info("channel created",
		"channel_id", ch.ID,
		"channel_type", ch.Type)
	return ch, nil
}

// FindByID loads a channel record.
func (s *Service) FindByID(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := s.stores.Channels.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// FindByType lists all channels of a transport kind.
func (s *Service) FindByType(ctx context.Context, channelType string) ([]*models.Channel, error) {
	return s.stores.Channels.ListByType(ctx, channelType)
}

// FindByUserID lists a user's channels.
func (s *Service) FindByUserID(ctx context.Context, userID string) ([]*models.Channel, error) {
	return s.stores.Channels.ListByUser(ctx, userID)
}

// Delete removes a channel record and announces the removal.
func (s *Service) Delete(ctx context.Context, id string) error {
	ch, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.stores.Channels.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if err := s.bus.Publish(ctx, TopicRemoved(ch.Type), ChannelSchema, ch); err != nil {
		return fmt.Errorf("announce removal: %w", err)
	}
	return nil
}

func (s *Service) validateBindings(ctx context.Context, channelType, userID, botID string) error {
	s.mu.RLock()
	available := false
	for _, t := range s.types {
		if t.ID == channelType {
			available = true
			break
		}
	}
	s.mu.RUnlock()
	if !available {
		return fmt.Errorf("%w: %s", ErrChannelTypeNotAvailable, channelType)
	}

	if _, err := s.stores.Bots.Get(ctx, botID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBotNotFound, botID)
		}
		return err
	}
	if _, err := s.stores.Users.Get(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return err
	}
	return nil
}
