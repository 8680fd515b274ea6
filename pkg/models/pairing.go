package models

// PairingKind describes how a pairing payload should be presented to the
// user.
type PairingKind string

const (
	// PairingVisualCode is a payload meant to be rendered as a scannable
	// code (QR).
	PairingVisualCode PairingKind = "VISUAL_CODE"
	// PairingRawCode is a payload meant to be typed in verbatim.
	PairingRawCode PairingKind = "RAW_CODE"
)

// PairingData is the ephemeral artifact a transport produces while a new
// session authenticates. It is carried once over the event bus to whoever
// requested pairing and never stored.
type PairingData struct {
	ChannelID   string      `json:"channelId"`
	ChannelType string      `json:"channelType"`
	Kind        PairingKind `json:"kind"`
	Payload     string      `json:"payload"`
}
