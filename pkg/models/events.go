package models

// ChannelMessageEvent is the payload carried on input-event and
// output-event topics. Input events flow from a transport into the chat
// layer (sender RECIPIENT); output events flow from the chat layer back
// out (sender USER or BOT).
type ChannelMessageEvent struct {
	Channel *Channel     `json:"channel"`
	Chat    *Chat        `json:"chat"`
	Message *ChatMessage `json:"message"`
}

// StatusUpdateEvent is published on the channel-scoped status-update topic
// whenever the persisted channel status actually changes.
type StatusUpdateEvent struct {
	ChannelID string        `json:"channelId"`
	SessionID string        `json:"sessionId,omitempty"`
	Status    ChannelStatus `json:"status"`
}
