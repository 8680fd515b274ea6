package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parleybot/parley/pkg/models"
)

// MemoryStores is an in-memory StoreSet used by tests and ephemeral runs.
type MemoryStores struct {
	mu       sync.RWMutex
	channels map[string]*models.Channel
	chats    map[string]*models.Chat
	messages map[string]*models.ChatMessage
	users    map[string]*models.User
	bots     map[string]*models.Bot
}

// NewMemoryStores creates an empty in-memory store set.
func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		channels: make(map[string]*models.Channel),
		chats:    make(map[string]*models.Chat),
		messages: make(map[string]*models.ChatMessage),
		users:    make(map[string]*models.User),
		bots:     make(map[string]*models.Bot),
	}
}

// StoreSet exposes the memory stores through the persistence ports.
func (m *MemoryStores) StoreSet() StoreSet {
	return StoreSet{
		Channels: (*memoryChannelStore)(m),
		Chats:    (*memoryChatStore)(m),
		Messages: (*memoryMessageStore)(m),
		Users:    (*memoryUserStore)(m),
		Bots:     (*memoryBotStore)(m),
	}
}

// --- channels ---

type memoryChannelStore MemoryStores

func (s *memoryChannelStore) Create(_ context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ID]; ok {
		return ErrAlreadyExists
	}
	s.channels[ch.ID] = ch.Clone()
	return nil
}

func (s *memoryChannelStore) Get(_ context.Context, id string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ch.Clone(), nil
}

func (s *memoryChannelStore) GetBySessionID(_ context.Context, sessionID string) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.channels {
		if ch.SessionID != nil && *ch.SessionID == sessionID {
			return ch.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryChannelStore) List(_ context.Context) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch.Clone())
	}
	sortChannels(out)
	return out, nil
}

func (s *memoryChannelStore) ListByType(_ context.Context, channelType string) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Channel
	for _, ch := range s.channels {
		if ch.Type == channelType {
			out = append(out, ch.Clone())
		}
	}
	sortChannels(out)
	return out, nil
}

func (s *memoryChannelStore) ListByUser(_ context.Context, userID string) ([]*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Channel
	for _, ch := range s.channels {
		if ch.UserID == userID {
			out = append(out, ch.Clone())
		}
	}
	sortChannels(out)
	return out, nil
}

func (s *memoryChannelStore) Update(_ context.Context, ch *models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ID]; !ok {
		return ErrNotFound
	}
	updated := ch.Clone()
	updated.UpdatedAt = time.Now().UTC()
	s.channels[ch.ID] = updated
	return nil
}

func (s *memoryChannelStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

func sortChannels(channels []*models.Channel) {
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})
}

// --- chats ---

type memoryChatStore MemoryStores

func (s *memoryChatStore) Create(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chat.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range s.chats {
		if existing.InternalIdentifier == chat.InternalIdentifier {
			return ErrAlreadyExists
		}
	}
	cp := *chat
	s.chats[chat.ID] = &cp
	return nil
}

func (s *memoryChatStore) Get(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *chat
	return &cp, nil
}

func (s *memoryChatStore) GetByInternalIdentifier(_ context.Context, identifier string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chat := range s.chats {
		if chat.InternalIdentifier == identifier {
			cp := *chat
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryChatStore) ListByChannel(_ context.Context, channelID string) ([]*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Chat
	for _, chat := range s.chats {
		if chat.ChannelID == channelID {
			cp := *chat
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryChatStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		return ErrNotFound
	}
	delete(s.chats, id)
	return nil
}

// --- messages ---

type memoryMessageStore MemoryStores

func (s *memoryMessageStore) Create(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *memoryMessageStore) ListByChat(_ context.Context, chatID string) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChatMessage
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- users ---

type memoryUserStore MemoryStores

func (s *memoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memoryUserStore) Get(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// --- bots ---

type memoryBotStore MemoryStores

func (s *memoryBotStore) Create(_ context.Context, bot *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bots[bot.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *bot
	s.bots[bot.ID] = &cp
	return nil
}

func (s *memoryBotStore) Get(_ context.Context, id string) (*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *bot
	return &cp, nil
}
