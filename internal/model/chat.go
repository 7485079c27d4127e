// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// DefaultTitle is the sentinel title of a chat whose title has not been
// generated yet. The first message of such a chat triggers one title
// generation attempt.
const DefaultTitle = "New Chat"

// Chat defaults applied at creation.
const (
	DefaultModel        = "gpt-3.5-turbo"
	DefaultTemperature  = 0.7
	DefaultSystemPrompt = "You are a helpful assistant."
)

// Chat represents a persistent conversation session.
type Chat struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasDefaultTitle reports whether the chat still carries the sentinel title.
func (c *Chat) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// UpdateChatSettingsRequest is the request to change chat generation settings.
// Nil fields are left untouched.
type UpdateChatSettingsRequest struct {
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
}

// ListChatsResponse is the response for listing chats.
type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
	Total int    `json:"total"`
}
