package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
)

var (
	// ErrStreamActive is returned when a stream is already relaying into
	// the chat. Only one stream per chat may be in flight.
	ErrStreamActive = errors.New("another stream is active for this chat")

	// ErrEmptyContent is returned for a blank user message.
	ErrEmptyContent = errors.New("message content cannot be empty")
)

// streamErrorMessage is the only error text a client ever sees on a stream.
// Provider detail stays in the server logs.
const streamErrorMessage = "Error processing your message."

// ProviderFactory acquires a completion client scoped to one exchange.
type ProviderFactory interface {
	ClientFor(user *model.User) (llm.Client, error)
}

// EmitFunc pushes one event to the transport. Called from a single
// goroutine, in emission order.
type EmitFunc func(model.StreamEvent) error

// StreamService owns the lifecycle of one streaming exchange per chat:
// persist the user message, maybe generate a title, assemble context, relay
// completion deltas, persist the assistant reply, emit the terminal event.
type StreamService struct {
	chats     store.ChatStore
	journal   store.MessageJournal
	users     store.UserStore
	usage     store.UsageLog
	providers ProviderFactory
	titles    *TitleGenerator
	logger    *logger.Logger

	idleTimeout   time.Duration
	contextWindow int

	// inflight holds chat ids with an active exchange.
	inflight sync.Map
}

// NewStreamService creates a new stream orchestrator.
func NewStreamService(
	chats store.ChatStore,
	journal store.MessageJournal,
	users store.UserStore,
	usage store.UsageLog,
	providers ProviderFactory,
	titles *TitleGenerator,
	idleTimeout time.Duration,
	contextWindow int,
	log *logger.Logger,
) *StreamService {
	if contextWindow <= 0 {
		contextWindow = 20
	}
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	return &StreamService{
		chats:         chats,
		journal:       journal,
		users:         users,
		usage:         usage,
		providers:     providers,
		titles:        titles,
		logger:        log,
		idleTimeout:   idleTimeout,
		contextWindow: contextWindow,
	}
}

// StreamReply runs one streaming exchange, pushing events through emit.
//
// Errors returned directly occurred before any event was emitted (the
// connection has not been committed to streaming); the caller should surface
// them as a plain error response. Once emission starts, all failures are
// delivered as an error event and StreamReply returns nil.
func (s *StreamService) StreamReply(ctx context.Context, userID, chatID string, req *model.SendMessageRequest, emit EmitFunc) error {
	if strings.TrimSpace(req.Content) == "" {
		return ErrEmptyContent
	}

	if !s.acquire(chatID) {
		return ErrStreamActive
	}
	defer s.release(chatID)

	user, chat, client, err := s.prepare(ctx, userID, chatID)
	if err != nil {
		return err
	}

	// PERSIST_USER. Failure here is fatal and pre-stream.
	userMsg := &model.Message{ChatID: chatID, Role: model.RoleUser, Content: req.Content}
	if _, err := s.journal.Append(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	metrics.IncrementActiveStreams()
	defer metrics.DecrementActiveStreams()

	log := s.logger.WithChat(chatID, userID)
	start := time.Now()

	// TITLE_CHECK. Best effort; failure keeps the sentinel and emits nothing.
	if updated := s.maybeGenerateTitle(ctx, client, chat, req); updated != nil {
		chat = updated
		if err := emit(model.ChatUpdateEvent(chat)); err != nil {
			return nil
		}
	}

	// CONTEXT_BUILD. The persisted chat is authoritative for model and
	// temperature from here on.
	messages, err := s.buildContext(ctx, chat, user)
	if err != nil {
		log.Error("failed to build context", zap.Error(err))
		s.fail(emit, chat.Model, start)
		return nil
	}

	// RELAY. The watchdog treats a silent provider as a failed one.
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(s.idleTimeout, cancel)
	defer watchdog.Stop()

	var emitErr error
	resp, err := client.CompleteStream(relayCtx, &llm.CompletionRequest{
		Model:       chat.Model,
		Messages:    messages,
		Temperature: chat.Temperature,
	}, func(delta string, index int) error {
		watchdog.Reset(s.idleTimeout)
		if delta == "" {
			return nil
		}
		if err := emit(model.ContentEvent(delta)); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if err != nil {
		if emitErr != nil {
			// Transport is gone; nothing left to tell the client.
			log.Warn("client disconnected mid-stream", zap.Error(emitErr))
			return nil
		}
		log.Error("completion stream failed", zap.Error(err))
		// Partial content is discarded, not persisted.
		s.fail(emit, chat.Model, start)
		return nil
	}

	// FINALIZE. A completion with zero deltas persists nothing.
	if resp.Content != "" {
		assistantMsg := &model.Message{ChatID: chatID, Role: model.RoleAssistant, Content: resp.Content}
		if _, err := s.journal.Append(ctx, assistantMsg); err != nil {
			log.Error("failed to persist assistant message", zap.Error(err))
			s.fail(emit, chat.Model, start)
			return nil
		}
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	}

	metrics.RecordStream(chat.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	_ = emit(model.DoneEvent())
	return nil
}

// Reply runs the same exchange without incremental delivery and returns the
// completed assistant message, plus the updated chat when title generation
// ran. Exact token usage is recorded here.
func (s *StreamService) Reply(ctx context.Context, userID, chatID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	if !s.acquire(chatID) {
		return nil, ErrStreamActive
	}
	defer s.release(chatID)

	user, chat, client, err := s.prepare(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	userMsg := &model.Message{ChatID: chatID, Role: model.RoleUser, Content: req.Content}
	if _, err := s.journal.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	updated := s.maybeGenerateTitle(ctx, client, chat, req)
	if updated != nil {
		chat = updated
	}

	messages, err := s.buildContext(ctx, chat, user)
	if err != nil {
		return nil, fmt.Errorf("failed to build context: %w", err)
	}

	resp, err := client.Complete(ctx, &llm.CompletionRequest{
		Model:       chat.Model,
		Messages:    messages,
		Temperature: chat.Temperature,
	})
	if err != nil {
		s.recordUsage(ctx, userID, chat, nil, false)
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	total := resp.TokensIn + resp.TokensOut
	assistantMsg := &model.Message{
		ChatID:     chatID,
		Role:       model.RoleAssistant,
		Content:    resp.Content,
		TokenUsage: &total,
	}
	if _, err := s.journal.Append(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	s.recordUsage(ctx, userID, chat, resp, true)

	return &model.SendMessageResponse{
		AssistantMessage: assistantMsg,
		UpdatedChat:      updated,
	}, nil
}

// prepare resolves the caller, verifies chat ownership, and acquires a
// provider client for the exchange.
func (s *StreamService) prepare(ctx context.Context, userID, chatID string) (*model.User, *model.Chat, llm.Client, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	chat, err := s.chats.Get(ctx, userID, chatID)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := s.providers.ClientFor(user)
	if err != nil {
		return nil, nil, nil, err
	}

	return user, chat, client, nil
}

// maybeGenerateTitle runs exactly one title-generation attempt, on the first
// message of the chat only. On success the request's generation settings are
// adopted alongside the title and the updated chat is returned; on failure
// the sentinel is kept and nil is returned.
func (s *StreamService) maybeGenerateTitle(ctx context.Context, client llm.Client, chat *model.Chat, req *model.SendMessageRequest) *model.Chat {
	if !chat.HasDefaultTitle() {
		return nil
	}

	title := s.titles.Generate(ctx, client, req.Content)
	if title == model.DefaultTitle {
		return nil
	}

	patch := &model.UpdateChatSettingsRequest{}
	if req.Model != "" {
		patch.Model = &req.Model
	}
	if req.Temperature != nil {
		patch.Temperature = req.Temperature
	}
	if req.SystemPrompt != "" {
		patch.SystemPrompt = &req.SystemPrompt
	}
	if _, err := s.chats.Patch(ctx, chat.UserID, chat.ID, patch); err != nil {
		s.logger.WithChat(chat.ID, chat.UserID).Warn("failed to adopt first-message settings", zap.Error(err))
		return nil
	}

	updated, err := s.chats.SetTitle(ctx, chat.UserID, chat.ID, title)
	if err != nil {
		s.logger.WithChat(chat.ID, chat.UserID).Warn("failed to persist generated title", zap.Error(err))
		return nil
	}
	return updated
}

// buildContext assembles the provider message list: a synthetic system entry
// with the chat's stored prompt (plus the user's custom instructions when
// enabled), followed by the most recent messages in chronological order.
// Older history is dropped from context, not from storage.
func (s *StreamService) buildContext(ctx context.Context, chat *model.Chat, user *model.User) ([]llm.ChatMessage, error) {
	recent, err := s.journal.Recent(ctx, chat.ID, s.contextWindow)
	if err != nil {
		return nil, err
	}

	system := chat.SystemPrompt
	if user.EnableCustomInstructions && user.CustomInstructions != "" {
		system += "\n\n" + user.CustomInstructions
	}

	messages := make([]llm.ChatMessage, 0, len(recent)+1)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	for _, m := range recent {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return messages, nil
}

func (s *StreamService) fail(emit EmitFunc, modelName string, start time.Time) {
	metrics.RecordStream(modelName, "error", time.Since(start).Seconds(), 0, 0)
	_ = emit(model.ErrorEvent(streamErrorMessage))
}

func (s *StreamService) recordUsage(ctx context.Context, userID string, chat *model.Chat, resp *llm.CompletionResponse, success bool) {
	if s.usage == nil {
		return
	}

	rec := &model.UsageRecord{
		UserID:  userID,
		ChatID:  chat.ID,
		Model:   chat.Model,
		Success: success,
	}
	if resp != nil {
		rec.InputTokens = resp.TokensIn
		rec.OutputTokens = resp.TokensOut
		rec.LatencyMs = resp.LatencyMs
	}
	if err := s.usage.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record usage", zap.Error(err))
	}
}

func (s *StreamService) acquire(chatID string) bool {
	_, loaded := s.inflight.LoadOrStore(chatID, struct{}{})
	return !loaded
}

func (s *StreamService) release(chatID string) {
	s.inflight.Delete(chatID)
}
