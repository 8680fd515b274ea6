package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat is a 1:1 conversation between a channel's external account and one
// remote party. The internal identifier is derived from the channel id and
// the transport-level remote party identifier, so the same remote party
// always maps to the same chat.
type Chat struct {
	ID                 string    `json:"id"`
	ChannelID          string    `json:"messageChannelId"`
	InternalIdentifier string    `json:"internalIdentifier"`
	Name               string    `json:"name"`
	Contact            string    `json:"contact"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewChat creates a chat for a channel and remote party.
func NewChat(channelID, internalIdentifier, name, contact string) *Chat {
	now := time.Now().UTC()
	return &Chat{
		ID:                 uuid.NewString(),
		ChannelID:          channelID,
		InternalIdentifier: internalIdentifier,
		Name:               name,
		Contact:            contact,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ChatInternalIdentifier derives the stable chat key for a remote party on
// a channel.
func ChatInternalIdentifier(channelID, remoteID string) string {
	return channelID + "|" + remoteID
}

// ParseChatInternalIdentifier splits an internal identifier back into its
// channel id and remote party identifier.
func ParseChatInternalIdentifier(identifier string) (channelID, remoteID string, err error) {
	channelID, remoteID, ok := strings.Cut(identifier, "|")
	if !ok || channelID == "" || remoteID == "" {
		return "", "", fmt.Errorf("malformed chat identifier %q", identifier)
	}
	return channelID, remoteID, nil
}

// ChatSender identifies who authored a chat message.
type ChatSender string

const (
	SenderUser      ChatSender = "USER"
	SenderBot       ChatSender = "BOT"
	SenderRecipient ChatSender = "RECIPIENT"
)

// Valid reports whether the sender is a known value.
func (s ChatSender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderRecipient:
		return true
	}
	return false
}

// ChatMessage is a single message inside a chat.
type ChatMessage struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	Sender    ChatSender `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewChatMessage creates a chat message.
func NewChatMessage(chatID string, sender ChatSender, content string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
