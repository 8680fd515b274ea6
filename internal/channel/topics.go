// Package channel holds the shared vocabulary of the channel subsystem:
// topic naming, payload schemas, the status state machine and the channel
// application service.
package channel

import "fmt"

// topicPrefix scopes every channel topic on the bus.
const topicPrefix = "message-channel"

// TopicRequestPairing is where pairing requests for a transport type are
// published.
func TopicRequestPairing(channelType string) string {
	return fmt.Sprintf("%s.%s.request-pairing", topicPrefix, channelType)
}

// TopicPairingData is the channel-scoped topic a pairing artifact is
// delivered on.
func TopicPairingData(channelType, channelID string) string {
	return fmt.Sprintf("%s.%s.pairing-data.%s", topicPrefix, channelType, channelID)
}

// TopicUnpair is where unpair broadcasts for a transport type are
// published.
func TopicUnpair(channelType string) string {
	return fmt.Sprintf("%s.%s.unpair", topicPrefix, channelType)
}

// TopicStatusUpdate is the channel-scoped topic status transitions are
// published on.
func TopicStatusUpdate(channelType, channelID string) string {
	return fmt.Sprintf("%s.%s.status-update.%s", topicPrefix, channelType, channelID)
}

// TopicOutputEvent carries messages from the chat layer out to a
// transport.
func TopicOutputEvent(channelType string) string {
	return fmt.Sprintf("%s.%s.output-event", topicPrefix, channelType)
}

// TopicInputEvent carries messages from a transport into the chat layer.
func TopicInputEvent(channelType string) string {
	return fmt.Sprintf("%s.%s.input-event", topicPrefix, channelType)
}

// TopicCreated announces newly created channels of a transport type.
func TopicCreated(channelType string) string {
	return fmt.Sprintf("%s.%s.created", topicPrefix, channelType)
}

// TopicRemoved announces deleted channels of a transport type.
func TopicRemoved(channelType string) string {
	return fmt.Sprintf("%s.%s.removed", topicPrefix, channelType)
}
