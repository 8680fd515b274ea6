package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelStatus is the connection status persisted on a channel record.
//
// DISCONNECTED is the initial state: no session bound, or a session that
// was explicitly torn down. CLOSE is distinct from DISCONNECTED so callers
// can tell "never connected" apart from "was connected, dropped".
type ChannelStatus string

const (
	StatusDisconnected ChannelStatus = "DISCONNECTED"
	StatusConnecting   ChannelStatus = "CONNECTING"
	StatusOpen         ChannelStatus = "OPEN"
	StatusClose        ChannelStatus = "CLOSE"
)

// Valid reports whether the status is one of the four known states.
func (s ChannelStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusOpen, StatusClose:
		return true
	}
	return false
}

// Channel is a configured binding between an internal bot/user and one
// external messaging account.
//
// SessionID is set once pairing succeeds. A non-nil SessionID means the
// channel was paired at some point; it does not imply a live connection
// exists right now.
type Channel struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Contact   string        `json:"contact"`
	Type      string        `json:"type"`
	Status    ChannelStatus `json:"status"`
	UserID    string        `json:"userId"`
	BotID     string        `json:"botId"`
	SessionID *string       `json:"sessionId"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// NewChannel creates a channel record in the initial DISCONNECTED state.
func NewChannel(name, contact, channelType, userID, botID string) *Channel {
	now := time.Now().UTC()
	return &Channel{
		ID:        uuid.NewString(),
		Name:      name,
		Contact:   contact,
		Type:      channelType,
		Status:    StatusDisconnected,
		UserID:    userID,
		BotID:     botID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Paired reports whether a session is currently bound to the channel.
func (c *Channel) Paired() bool {
	return c.SessionID != nil && *c.SessionID != ""
}

// Clone returns a deep copy of the channel record.
func (c *Channel) Clone() *Channel {
	out := *c
	if c.SessionID != nil {
		sid := *c.SessionID
		out.SessionID = &sid
	}
	return &out
}
