// Package storage defines the persistence ports consumed by the channel
// core, with in-memory and SQLite implementations. Domain entities are
// CRUD-shaped; all the interesting state lives in the connection manager.
package storage

import (
	"context"
	"errors"

	"github.com/parleybot/parley/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ChannelStore persists channel records.
//
// The status and sessionId fields are mutated only by the connection
// manager and the pairing coordinator; everything else just reads them.
type ChannelStore interface {
	Create(ctx context.Context, ch *models.Channel) error
	Get(ctx context.Context, id string) (*models.Channel, error)
	// GetBySessionID returns ErrNotFound when no channel currently holds
	// the session.
	GetBySessionID(ctx context.Context, sessionID string) (*models.Channel, error)
	// List returns every channel regardless of type.
	List(ctx context.Context) ([]*models.Channel, error)
	ListByType(ctx context.Context, channelType string) ([]*models.Channel, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Channel, error)
	Update(ctx context.Context, ch *models.Channel) error
	Delete(ctx context.Context, id string) error
}

// ChatStore persists chats keyed by their internal identifier.
type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	Get(ctx context.Context, id string) (*models.Chat, error)
	GetByInternalIdentifier(ctx context.Context, identifier string) (*models.Chat, error)
	ListByChannel(ctx context.Context, channelID string) ([]*models.Chat, error)
	Delete(ctx context.Context, id string) error
}

// MessageStore persists chat messages.
type MessageStore interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListByChat(ctx context.Context, chatID string) ([]*models.ChatMessage, error)
}

// UserStore reads user records for channel binding validation.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
}

// BotStore reads bot records for channel binding validation.
type BotStore interface {
	Create(ctx context.Context, bot *models.Bot) error
	Get(ctx context.Context, id string) (*models.Bot, error)
}

// StoreSet groups the persistence dependencies of the core.
type StoreSet struct {
	Channels ChannelStore
	Chats    ChatStore
	Messages MessageStore
	Users    UserStore
	Bots     BotStore

	closer func() error
}

// Close releases any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
