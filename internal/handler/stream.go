package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parley-ai/chat-platform/internal/middleware"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/service"
	"github.com/parley-ai/chat-platform/internal/sse"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// StreamHandler handles the SSE streaming endpoint.
type StreamHandler struct {
	streamService *service.StreamService
	logger        *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(streamSvc *service.StreamService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		streamService: streamSvc,
		logger:        log,
	}
}

// Stream handles POST /api/v1/chats/:id/stream
//
// The response stays a plain JSON error until the orchestrator emits its
// first event; only then is the connection committed to the event stream.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
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

	var framer *sse.Framer
	emit := func(ev model.StreamEvent) error {
		if framer == nil {
			f, err := sse.NewFramer(w)
			if err != nil {
				return err
			}
			framer = f
		}
		return framer.WriteEvent(ev)
	}

	if err := h.streamService.StreamReply(ctx, userID, chatID, &req, emit); err != nil {
		// No event was emitted; the connection is still plain HTTP.
		writeSendError(w, h.logger, err)
	}
}
