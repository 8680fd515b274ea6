package manager

import (
	"context"

	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/pkg/models"
)

// Transport opens live sessions for one channel type. Implementations own
// the platform SDK and whatever credential material it keeps on disk.
type Transport interface {
	// Type is the channel type this transport serves, e.g. "whatsapp".
	Type() string

	// DisplayName is the human-readable name announced to the channel
	// type registry.
	DisplayName() string

	// Open establishes a session for the channel. The session starts in
	// the connecting state and reports everything further through its
	// event stream.
	Open(ctx context.Context, ch *models.Channel) (Session, error)

	// RemoveLocalState deletes any credential material the transport
	// keeps for the channel. Removing state that does not exist is not
	// an error.
	RemoveLocalState(channelID string) error
}

// Session is one live transport connection.
type Session interface {
	// Events streams everything that happens on the session. The channel
	// is closed after a ClosedEvent is delivered.
	Events() <-chan Event

	// SessionID is the stable identity of the authenticated session,
	// empty until the transport has authenticated.
	SessionID() string

	// Send delivers a text message to a remote party.
	Send(ctx context.Context, remoteID, text string) error

	// Logout invalidates the session upstream.
	Logout(ctx context.Context) error

	// Close tears the connection down without invalidating credentials.
	Close() error
}

// Event is a transport session event. The concrete types below are the
// complete set.
type Event interface{ isEvent() }

// MessageEvent is an inbound message from a remote party.
type MessageEvent struct {
	RemoteID   string
	RemoteName string
	// RemotePhone is the phone number derived from the remote address,
	// empty when the transport has no phone-shaped addressing.
	RemotePhone string
	Text        string
	Broadcast   bool
	Group       bool
}

// StatusEvent reports a connection state change.
type StatusEvent struct {
	State channel.ConnectionState
}

// PairingCodeEvent carries a fresh pairing artifact produced while the
// session authenticates.
type PairingCodeEvent struct {
	Kind    models.PairingKind
	Payload string
}

// CredentialsEvent reports that the transport persisted new credential
// material and the session identity is final.
type CredentialsEvent struct {
	SessionID string
}

// CloseCause explains why a session ended.
type CloseCause string

const (
	// CauseLoggedOut means the remote platform invalidated the session.
	CauseLoggedOut CloseCause = "logged-out"
	// CauseRestartRequired means the transport needs a fresh connection
	// with the same credentials.
	CauseRestartRequired CloseCause = "restart-required"
	// CauseUnknown covers every other disconnect.
	CauseUnknown CloseCause = "unknown"
)

// ClosedEvent is the final event on a session's stream.
type ClosedEvent struct {
	Cause CloseCause
}

func (MessageEvent) isEvent()     {}
func (StatusEvent) isEvent()      {}
func (PairingCodeEvent) isEvent() {}
func (CredentialsEvent) isEvent() {}
func (ClosedEvent) isEvent()      {}
