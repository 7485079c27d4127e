package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/chat-platform/internal/model"
)

// MemoryChatStore is an in-memory ChatStore.
type MemoryChatStore struct {
	mu    sync.RWMutex
	chats map[string]*model.Chat
}

// NewMemoryChatStore creates an empty in-memory chat store.
func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{chats: make(map[string]*model.Chat)}
}

// Create stores a new chat, assigning an ID when absent.
func (s *MemoryChatStore) Create(ctx context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ID == "" {
		chat.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	cp := *chat
	s.chats[chat.ID] = &cp
	return nil
}

// Get returns a copy of the chat owned by userID.
func (s *MemoryChatStore) Get(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *chat
	return &cp, nil
}

// List returns the user's chats, newest first.
func (s *MemoryChatStore) List(ctx context.Context, userID string) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []model.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// Patch applies non-nil settings fields.
func (s *MemoryChatStore) Patch(ctx context.Context, userID, chatID string, req *model.UpdateChatSettingsRequest) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrNotFound
	}

	if req.Model != nil {
		chat.Model = *req.Model
	}
	if req.Temperature != nil {
		chat.Temperature = *req.Temperature
	}
	if req.SystemPrompt != nil {
		chat.SystemPrompt = *req.SystemPrompt
	}
	chat.UpdatedAt = time.Now()

	cp := *chat
	return &cp, nil
}

// SetTitle replaces the chat title.
func (s *MemoryChatStore) SetTitle(ctx context.Context, userID, chatID, title string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrNotFound
	}

	chat.Title = title
	chat.UpdatedAt = time.Now()

	cp := *chat
	return &cp, nil
}

// MemoryJournal is an in-memory MessageJournal.
type MemoryJournal struct {
	mu       sync.RWMutex
	messages map[string][]model.Message
	seq      uint64
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{messages: make(map[string][]model.Message)}
}

// Append persists a message and returns its sequence.
func (j *MemoryJournal) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	j.seq++
	msg.Sequence = j.seq
	j.messages[msg.ChatID] = append(j.messages[msg.ChatID], *msg)
	return j.seq, nil
}

// List returns all messages of a chat in append order.
func (j *MemoryJournal) List(ctx context.Context, chatID string) ([]model.Message, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	msgs := j.messages[chatID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Recent returns the trailing limit messages in chronological order.
func (j *MemoryJournal) Recent(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	msgs := j.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// MemoryUserStore is an in-memory UserStore seeded at construction.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

// NewMemoryUserStore creates a user store holding the given users.
func NewMemoryUserStore(users ...*model.User) *MemoryUserStore {
	s := &MemoryUserStore{users: make(map[string]*model.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// Put adds or replaces a user.
func (s *MemoryUserStore) Put(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Get returns a copy of the user.
func (s *MemoryUserStore) Get(ctx context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// MemoryUsageLog is an in-memory UsageLog.
type MemoryUsageLog struct {
	mu      sync.Mutex
	records []model.UsageRecord
}

// NewMemoryUsageLog creates an empty usage log.
func NewMemoryUsageLog() *MemoryUsageLog {
	return &MemoryUsageLog{}
}

// Record appends a usage record.
func (l *MemoryUsageLog) Record(ctx context.Context, rec *model.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	l.records = append(l.records, *rec)
	return nil
}

// Records returns a snapshot of recorded usage.
func (l *MemoryUsageLog) Records() []model.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}
