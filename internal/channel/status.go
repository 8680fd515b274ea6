package channel

import "github.com/parleybot/parley/pkg/models"

// ConnectionState is the connection state a transport session reports.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClose      ConnectionState = "close"
)

// StatusFor maps a transport connection state onto the persisted channel
// status. The mapping is total: anything a transport reports outside the
// known states lands on DISCONNECTED.
func StatusFor(state ConnectionState) models.ChannelStatus {
	switch state {
	case StateOpen:
		return models.StatusOpen
	case StateConnecting:
		return models.StatusConnecting
	case StateClose:
		return models.StatusClose
	default:
		return models.StatusDisconnected
	}
}
