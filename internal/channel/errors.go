package channel

import "errors"

var (
	// ErrChannelNotFound marks a channel id that has no record.
	ErrChannelNotFound = errors.New("message channel not found")

	// ErrChannelTypeNotAvailable marks a channel type no transport has
	// registered for.
	ErrChannelTypeNotAvailable = errors.New("message channel type not available")

	// ErrBotNotFound and ErrUserNotFound mark invalid channel bindings.
	ErrBotNotFound  = errors.New("bot not found")
	ErrUserNotFound = errors.New("user not found")
)
