// Package service provides business logic for the chat platform.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
)

// ChatService handles chat session operations.
type ChatService struct {
	chats   store.ChatStore
	journal store.MessageJournal
	logger  *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(chats store.ChatStore, journal store.MessageJournal, log *logger.Logger) *ChatService {
	return &ChatService{
		chats:   chats,
		journal: journal,
		logger:  log,
	}
}

// Create creates a new chat with default settings and the sentinel title.
func (s *ChatService) Create(ctx context.Context, userID string) (*model.Chat, error) {
	now := time.Now()

	chat := &model.Chat{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		Title:        model.DefaultTitle,
		Model:        model.DefaultModel,
		Temperature:  model.DefaultTemperature,
		SystemPrompt: model.DefaultSystemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	metrics.ChatsTotal.Inc()
	s.logger.WithChat(chat.ID, userID).Info("chat created")

	return chat, nil
}

// Get retrieves a chat owned by the user.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	return s.chats.Get(ctx, userID, chatID)
}

// List retrieves the user's chats, newest first.
func (s *ChatService) List(ctx context.Context, userID string) (*model.ListChatsResponse, error) {
	chats, err := s.chats.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	return &model.ListChatsResponse{
		Chats: chats,
		Total: len(chats),
	}, nil
}

// UpdateSettings patches the chat's generation settings.
func (s *ChatService) UpdateSettings(ctx context.Context, userID, chatID string, req *model.UpdateChatSettingsRequest) (*model.Chat, error) {
	return s.chats.Patch(ctx, userID, chatID, req)
}

// History returns the full message history of a chat in chronological order.
func (s *ChatService) History(ctx context.Context, userID, chatID string) (*model.ListMessagesResponse, error) {
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}

	messages, err := s.journal.List(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var lastSeq uint64
	if len(messages) > 0 {
		lastSeq = messages[len(messages)-1].Sequence
	}

	return &model.ListMessagesResponse{
		Messages:     messages,
		LastSequence: lastSeq,
	}, nil
}
