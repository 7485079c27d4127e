// Package store defines persistence interfaces for the chat platform and
// provides in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/parley-ai/chat-platform/internal/model"
)

// ErrNotFound is returned when a record does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("not found")

// ChatStore persists chat sessions.
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	// Get returns the chat only if it is owned by userID.
	Get(ctx context.Context, userID, chatID string) (*model.Chat, error)
	List(ctx context.Context, userID string) ([]model.Chat, error)
	// Patch applies non-nil fields of req and returns the updated chat.
	Patch(ctx context.Context, userID, chatID string, req *model.UpdateChatSettingsRequest) (*model.Chat, error)
	// SetTitle updates the title and, on the first message only, adopts the
	// generation settings sent with the request.
	SetTitle(ctx context.Context, userID, chatID, title string) (*model.Chat, error)
}

// MessageJournal is the append-only message log for chats. Appended messages
// are immutable.
type MessageJournal interface {
	// Append persists a message and returns its journal sequence.
	Append(ctx context.Context, msg *model.Message) (uint64, error)
	// List returns all messages of a chat in chronological order.
	List(ctx context.Context, chatID string) ([]model.Message, error)
	// Recent returns up to limit most recent messages of a chat, still in
	// chronological order.
	Recent(ctx context.Context, chatID string, limit int) ([]model.Message, error)
}

// UserStore resolves authenticated identities to user profiles.
type UserStore interface {
	Get(ctx context.Context, userID string) (*model.User, error)
}

// UsageLog records provider token accounting.
type UsageLog interface {
	Record(ctx context.Context, rec *model.UsageRecord) error
}
