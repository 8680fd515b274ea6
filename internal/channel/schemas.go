package channel

import "github.com/santhosh-tekuri/jsonschema/v5"

// Compiled payload schemas, one per topic family. The bus validates every
// published and delivered payload against these; a mismatch is dropped at
// the consumer instead of being retried.

// ChannelSchema validates channel records carried on request-pairing,
// unpair, created and removed topics.
var ChannelSchema = jsonschema.MustCompileString("channel.json", `{
	"type": "object",
	"required": ["id", "name", "type", "status", "userId", "botId"],
	"properties": {
		"id":        {"type": "string", "minLength": 1},
		"name":      {"type": "string", "minLength": 1},
		"contact":   {"type": "string"},
		"type":      {"type": "string", "minLength": 1},
		"status":    {"enum": ["DISCONNECTED", "CONNECTING", "OPEN", "CLOSE"]},
		"userId":    {"type": "string", "minLength": 1},
		"botId":     {"type": "string", "minLength": 1},
		"sessionId": {"type": ["string", "null"]}
	}
}`)

// PairingDataSchema validates pairing artifacts.
var PairingDataSchema = jsonschema.MustCompileString("pairing-data.json", `{
	"type": "object",
	"required": ["channelId", "channelType", "kind", "payload"],
	"properties": {
		"channelId":   {"type": "string", "minLength": 1},
		"channelType": {"type": "string", "minLength": 1},
		"kind":        {"enum": ["VISUAL_CODE", "RAW_CODE"]},
		"payload":     {"type": "string", "minLength": 1}
	}
}`)

// MessageEventSchema validates input-event and output-event payloads.
var MessageEventSchema = jsonschema.MustCompileString("message-event.json", `{
	"type": "object",
	"required": ["channel", "chat", "message"],
	"properties": {
		"channel": {
			"type": "object",
			"required": ["id", "type"],
			"properties": {
				"id":   {"type": "string", "minLength": 1},
				"type": {"type": "string", "minLength": 1}
			}
		},
		"chat": {
			"type": "object",
			"required": ["id", "internalIdentifier"],
			"properties": {
				"id":                 {"type": "string", "minLength": 1},
				"internalIdentifier": {"type": "string", "minLength": 1}
			}
		},
		"message": {
			"type": "object",
			"required": ["id", "chatId", "sender", "content"],
			"properties": {
				"id":      {"type": "string", "minLength": 1},
				"chatId":  {"type": "string", "minLength": 1},
				"sender":  {"enum": ["USER", "BOT", "RECIPIENT"]},
				"content": {"type": "string"}
			}
		}
	}
}`)

// StatusUpdateSchema validates status-update payloads.
var StatusUpdateSchema = jsonschema.MustCompileString("status-update.json", `{
	"type": "object",
	"required": ["channelId", "status"],
	"properties": {
		"channelId": {"type": "string", "minLength": 1},
		"sessionId": {"type": "string"},
		"status":    {"enum": ["DISCONNECTED", "CONNECTING", "OPEN", "CLOSE"]}
	}
}`)
