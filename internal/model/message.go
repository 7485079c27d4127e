package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a persisted conversation message. Messages are
// immutable once written.
type Message struct {
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// TokenUsage is the total token count reported by the provider.
	// Only populated for assistant messages on the non-streaming path.
	TokenUsage *int `json:"token_usage,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Sequence is the journal sequence, populated on read.
	Sequence uint64 `json:"sequence,omitempty"`
}

// SendMessageRequest is the request to send a new message to a chat.
// Model, temperature and system prompt are only adopted by the chat on its
// first message; afterwards the persisted chat settings are authoritative.
type SendMessageRequest struct {
	Content      string   `json:"content"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// SendMessageResponse is the non-streaming reply: the completed assistant
// message plus the updated chat when title generation ran.
type SendMessageResponse struct {
	AssistantMessage *Message `json:"assistant_message"`
	UpdatedChat      *Chat    `json:"updated_chat,omitempty"`
}

// ListMessagesResponse is the response for listing chat history.
type ListMessagesResponse struct {
	Messages     []Message `json:"messages"`
	LastSequence uint64    `json:"last_sequence"`
}
