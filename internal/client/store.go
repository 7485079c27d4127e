package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/chat-platform/internal/model"
)

// StreamErrorText is the fixed message shown in place of the assistant
// reply when a stream fails.
const StreamErrorText = "Something went wrong generating a response. Please try again."

var (
	// ErrNoActiveChat is returned when Send is called before SelectChat.
	ErrNoActiveChat = errors.New("no active chat")

	// ErrBusy is returned when a send is already outstanding.
	ErrBusy = errors.New("a send is already in progress")
)

// Store is the client-side source of truth for chats and messages. All
// mutation goes through its intention-revealing operations; frames of an
// outstanding send are applied strictly in arrival order.
type Store struct {
	mu sync.Mutex

	api *Client

	chats        []model.Chat
	activeChatID string
	messages     []model.Message

	// busyChatID is the chat with an outstanding send, or empty.
	busyChatID string

	// onChange, when set, is invoked after every state mutation.
	onChange func()
}

// NewStore creates a store over the given API client.
func NewStore(api *Client) *Store {
	return &Store{api: api}
}

// OnChange registers a callback invoked after each state change. Must be
// set before use from UIs that need refresh notifications.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Refresh reloads the chat list.
func (s *Store) Refresh(ctx context.Context) error {
	chats, err := s.api.ListChats(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.chats = chats
	s.mu.Unlock()
	s.notify()
	return nil
}

// NewChat creates a chat and makes it active.
func (s *Store) NewChat(ctx context.Context) (*model.Chat, error) {
	chat, err := s.api.CreateChat(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.chats = append([]model.Chat{*chat}, s.chats...)
	s.activeChatID = chat.ID
	s.messages = nil
	s.mu.Unlock()
	s.notify()
	return chat, nil
}

// SelectChat makes a chat active and loads its history. Frames of a stream
// still running for another chat are no longer applied to message content.
func (s *Store) SelectChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	s.activeChatID = chatID
	s.messages = nil
	s.mu.Unlock()
	s.notify()

	history, err := s.api.History(ctx, chatID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.activeChatID == chatID {
		s.messages = history
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateSettings patches the active chat's settings and reconciles the chat
// list entry.
func (s *Store) UpdateSettings(ctx context.Context, chatID string, req *model.UpdateChatSettingsRequest) error {
	chat, err := s.api.UpdateSettings(ctx, chatID, req)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.replaceChatLocked(chat)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Send submits a user message to the active chat and consumes the reply
// stream until its terminal frame. It blocks for the duration of the
// stream; run it from a goroutine in interactive UIs.
func (s *Store) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.activeChatID == "" {
		s.mu.Unlock()
		return ErrNoActiveChat
	}
	if s.busyChatID != "" {
		s.mu.Unlock()
		return ErrBusy
	}

	chatID := s.activeChatID
	now := time.Now()

	// Optimistic local records: the user message and the assistant
	// placeholder, created in the same instant.
	userMsg := model.Message{
		ID:        localID(),
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: now,
	}
	placeholder := model.Message{
		ID:        localID(),
		ChatID:    chatID,
		Role:      model.RoleAssistant,
		CreatedAt: now,
	}
	s.messages = append(s.messages, userMsg, placeholder)
	s.busyChatID = chatID
	placeholderID := placeholder.ID

	req := &model.SendMessageRequest{Content: content}
	for _, c := range s.chats {
		if c.ID == chatID {
			temp := c.Temperature
			req.Model = c.Model
			req.Temperature = &temp
			req.SystemPrompt = c.SystemPrompt
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	frames, errCh, err := s.api.StreamMessage(ctx, chatID, req)
	if err != nil {
		s.failSend(chatID, placeholderID)
		return err
	}

	for frame := range frames {
		terminal, err := s.applyFrame(chatID, placeholderID, frame)
		if err != nil {
			s.failSend(chatID, placeholderID)
			return err
		}
		if terminal {
			return nil
		}
	}

	// Frame channel closed without a terminal frame: transport failure.
	err = <-errCh
	s.failSend(chatID, placeholderID)
	if err == nil {
		err = errors.New("stream ended unexpectedly")
	}
	return err
}

// Chats returns a snapshot of the chat list.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Messages returns a snapshot of the active chat's messages.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveChatID returns the active chat id, or empty.
func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// Busy reports whether a send is outstanding.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyChatID != ""
}

// applyFrame reduces one frame into store state. Returns true for a
// terminal frame. A malformed frame is reported as an error; the caller
// treats it as a transport failure.
func (s *Store) applyFrame(chatID, placeholderID string, frame Frame) (bool, error) {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notify()
	}()

	switch frame.Event {
	case string(model.EventChatUpdate):
		var chat model.Chat
		if err := json.Unmarshal(frame.Data, &chat); err != nil {
			return false, fmt.Errorf("malformed chatUpdate frame: %w", err)
		}
		s.replaceChatLocked(&chat)
		return false, nil

	case string(model.EventContent):
		var payload model.ContentPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return false, fmt.Errorf("malformed content frame: %w", err)
		}
		// Append-only; dropped silently when the user navigated away.
		if s.activeChatID == chatID {
			s.appendToPlaceholderLocked(placeholderID, payload.Delta)
		}
		return false, nil

	case string(model.EventDone):
		s.busyChatID = ""
		return true, nil

	case string(model.EventError):
		s.resolvePlaceholderErrorLocked(chatID, placeholderID)
		return true, nil

	default:
		return false, fmt.Errorf("unknown frame type %q", frame.Event)
	}
}

// failSend applies the transport-failure path: identical to an error frame.
func (s *Store) failSend(chatID, placeholderID string) {
	s.mu.Lock()
	s.resolvePlaceholderErrorLocked(chatID, placeholderID)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resolvePlaceholderErrorLocked(chatID, placeholderID string) {
	if s.activeChatID == chatID {
		for i := range s.messages {
			if s.messages[i].ID == placeholderID {
				s.messages[i].Content = StreamErrorText
				break
			}
		}
	}
	s.busyChatID = ""
}

func (s *Store) appendToPlaceholderLocked(placeholderID, delta string) {
	for i := range s.messages {
		if s.messages[i].ID == placeholderID {
			s.messages[i].Content += delta
			return
		}
	}
}

func (s *Store) replaceChatLocked(chat *model.Chat) {
	for i := range s.chats {
		if s.chats[i].ID == chat.ID {
			s.chats[i] = *chat
			return
		}
	}
	s.chats = append([]model.Chat{*chat}, s.chats...)
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func localID() string {
	return "local-" + uuid.New().String()
}
