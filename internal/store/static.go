package store

import (
	"context"

	"github.com/parley-ai/chat-platform/internal/model"
)

// StaticUserStore resolves any authenticated subject to a bare profile.
// Stands in for the external auth service when no profile backend is
// wired; per-user API keys and custom instructions are absent.
type StaticUserStore struct{}

// NewStaticUserStore creates a static user store.
func NewStaticUserStore() *StaticUserStore {
	return &StaticUserStore{}
}

// Get returns a minimal user for the given id.
func (s *StaticUserStore) Get(ctx context.Context, userID string) (*model.User, error) {
	return &model.User{ID: userID}, nil
}
