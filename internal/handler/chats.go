// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parley-ai/chat-platform/internal/middleware"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/service"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// ChatHandler handles chat session endpoints.
type ChatHandler struct {
	chatService   *service.ChatService
	streamService *service.StreamService
	logger        *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService, streamSvc *service.StreamService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:   chatSvc,
		streamService: streamSvc,
		logger:        log,
	}
}

// Create handles POST /api/v1/chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	chat, err := h.chatService.Create(ctx, userID)
	if err != nil {
		h.logger.Error("failed to create chat")
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// List handles GET /api/v1/chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	resp, err := h.chatService.List(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list chats")
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/chats/:id
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := h.chatService.Get(ctx, userID, chatID)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// UpdateSettings handles PATCH /api/v1/chats/:id/settings
func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateChatSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Temperature != nil {
		if err := middleware.ValidateTemperature(*req.Temperature); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.SystemPrompt != nil {
		if err := middleware.ValidateSystemPrompt(*req.SystemPrompt); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	chat, err := h.chatService.UpdateSettings(ctx, userID, chatID, &req)
	if err != nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}

	writeJSON(w, http.StatusOK, chat)
}

// History handles GET /api/v1/chats/:id/messages
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.History(ctx, userID, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.logger.Error("failed to load history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/chats/:id/messages, the non-streaming fallback.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.streamService.Reply(ctx, userID, chatID, &req)
	if err != nil {
		writeSendError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeSendError maps orchestrator errors to HTTP responses without leaking
// provider detail.
func writeSendError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, service.ErrStreamActive):
		writeError(w, http.StatusConflict, "a message is already being processed for this chat")
	case errors.Is(err, service.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "content cannot be empty")
	default:
		log.Error("failed to process message")
		writeError(w, http.StatusInternalServerError, "failed to process message")
	}
}
