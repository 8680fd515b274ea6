package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account owner. Owned by the boundary collaborators; the
// channel core only reads it to validate channel bindings.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser creates a user record.
func NewUser(name, email string) *User {
	return &User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
}

// Bot is the conversational agent a channel delivers messages to.
type Bot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewBot creates a bot owned by a user.
func NewBot(name, userID string) *Bot {
	return &Bot{
		ID:        uuid.NewString(),
		Name:      name,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}
