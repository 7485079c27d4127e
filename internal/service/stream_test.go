package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// fakeClient scripts provider behavior per test.
type fakeClient struct {
	completeFn func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
	streamFn   func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error)
}

func (f *fakeClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.completeFn == nil {
		return nil, errors.New("no completion scripted")
	}
	return f.completeFn(ctx, req)
}

func (f *fakeClient) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	if f.streamFn == nil {
		return nil, errors.New("no stream scripted")
	}
	return f.streamFn(ctx, req, cb)
}

func (f *fakeClient) Name() string { return "fake" }

// streamOf scripts a stream that delivers the given deltas then succeeds.
func streamOf(deltas ...string) func(context.Context, *llm.CompletionRequest, llm.StreamCallback) (*llm.CompletionResponse, error) {
	return func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		var content string
		for i, d := range deltas {
			if err := cb(d, i); err != nil {
				return nil, err
			}
			content += d
		}
		return &llm.CompletionResponse{Content: content, Model: req.Model}, nil
	}
}

type fakeFactory struct {
	client llm.Client
	err    error
}

func (f *fakeFactory) ClientFor(user *model.User) (llm.Client, error) {
	return f.client, f.err
}

type fixture struct {
	svc     *StreamService
	chats   *store.MemoryChatStore
	journal *store.MemoryJournal
	users   *store.MemoryUserStore
	usage   *store.MemoryUsageLog
	client  *fakeClient
	chat    *model.Chat
}

// newFixture wires a stream service over in-memory stores with one chat.
// The chat title is non-default unless the test resets it.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	chats := store.NewMemoryChatStore()
	journal := store.NewMemoryJournal()
	users := store.NewMemoryUserStore(&model.User{ID: "user-1"})
	usage := store.NewMemoryUsageLog()
	client := &fakeClient{}

	chat := &model.Chat{
		UserID:       "user-1",
		Title:        "Existing Title",
		Model:        model.DefaultModel,
		Temperature:  model.DefaultTemperature,
		SystemPrompt: model.DefaultSystemPrompt,
	}
	require.NoError(t, chats.Create(context.Background(), chat))

	svc := NewStreamService(
		chats, journal, users, usage,
		&fakeFactory{client: client},
		NewTitleGenerator("", logger.NewNop()),
		time.Minute, 20,
		logger.NewNop(),
	)

	return &fixture{svc: svc, chats: chats, journal: journal, users: users, usage: usage, client: client, chat: chat}
}

func collect(events *[]model.StreamEvent) EmitFunc {
	return func(ev model.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestStreamReply_RelaysDeltasAndPersists(t *testing.T) {
	f := newFixture(t)
	f.client.streamFn = streamOf("Hel", "lo", " there")

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 4)
	require.Equal(t, model.EventContent, events[0].Type)
	require.Equal(t, "Hel", events[0].Delta)
	require.Equal(t, model.EventContent, events[1].Type)
	require.Equal(t, model.EventContent, events[2].Type)
	require.Equal(t, model.EventDone, events[3].Type)

	msgs, err := f.journal.List(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
	// Persisted content equals the delta concatenation.
	require.Equal(t, "Hello there", msgs[1].Content)
}

func TestStreamReply_EmptyContentRejected(t *testing.T) {
	f := newFixture(t)

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "   "}, collect(&events))
	require.ErrorIs(t, err, ErrEmptyContent)
	require.Empty(t, events)

	msgs, err := f.journal.List(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestStreamReply_ChatNotFound(t *testing.T) {
	f := newFixture(t)
	f.client.streamFn = streamOf("x")

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "other-user", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, events)
}

func TestStreamReply_TitleGeneratedOnFirstMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.chats.SetTitle(context.Background(), "user-1", f.chat.ID, model.DefaultTitle)
	require.NoError(t, err)

	f.client.completeFn = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: `"Planning a Trip"` + "\n"}, nil
	}
	f.client.streamFn = streamOf("ok")

	temp := 0.3
	var events []model.StreamEvent
	err = f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "help me plan a trip", Model: "gpt-4", Temperature: &temp},
		collect(&events))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, model.EventChatUpdate, events[0].Type)
	require.NotNil(t, events[0].Chat)
	require.Equal(t, "Planning a Trip", events[0].Chat.Title)

	// First-message settings are adopted alongside the title.
	updated, err := f.chats.Get(context.Background(), "user-1", f.chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Planning a Trip", updated.Title)
	require.Equal(t, "gpt-4", updated.Model)
	require.Equal(t, 0.3, updated.Temperature)
}

func TestStreamReply_TitleFailureKeepsSentinel(t *testing.T) {
	f := newFixture(t)
	_, err := f.chats.SetTitle(context.Background(), "user-1", f.chat.ID, model.DefaultTitle)
	require.NoError(t, err)

	f.client.completeFn = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("provider down")
	}
	f.client.streamFn = streamOf("reply")

	var events []model.StreamEvent
	err = f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	// No chatUpdate frame; the stream proceeds normally.
	require.Equal(t, model.EventContent, events[0].Type)
	require.Equal(t, model.EventDone, events[len(events)-1].Type)

	chat, err := f.chats.Get(context.Background(), "user-1", f.chat.ID)
	require.NoError(t, err)
	require.True(t, chat.HasDefaultTitle())
}

func TestStreamReply_NoTitleAttemptOnLaterMessages(t *testing.T) {
	f := newFixture(t)

	completeCalls := 0
	f.client.completeFn = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		completeCalls++
		return &llm.CompletionResponse{Content: "Should Not Happen"}, nil
	}
	f.client.streamFn = streamOf("reply")

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)
	require.Zero(t, completeCalls)
	require.Equal(t, model.EventContent, events[0].Type)
}

func TestStreamReply_ProviderFailureDiscardsPartial(t *testing.T) {
	f := newFixture(t)
	f.client.streamFn = func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		_ = cb("partial ", 0)
		return nil, errors.New("connection reset")
	}

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, model.EventError, last.Type)
	require.Equal(t, streamErrorMessage, last.Message)

	// Partial assistant content is not persisted; the user message is.
	msgs, err := f.journal.List(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestStreamReply_EmptyCompletionPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.client.streamFn = streamOf()

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 1)
	require.Equal(t, model.EventDone, events[0].Type)

	msgs, err := f.journal.List(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestStreamReply_ConcurrentSendRejected(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.client.streamFn = func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		close(started)
		<-release
		return &llm.CompletionResponse{Content: "done"}, nil
	}

	errCh := make(chan error, 1)
	go func() {
		var events []model.StreamEvent
		errCh <- f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
			&model.SendMessageRequest{Content: "first"}, collect(&events))
	}()
	<-started

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "second"}, collect(&events))
	require.ErrorIs(t, err, ErrStreamActive)

	close(release)
	require.NoError(t, <-errCh)

	// The guard is released after the stream completes.
	f.client.streamFn = streamOf("again")
	err = f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "third"}, collect(&events))
	require.NoError(t, err)
}

func TestStreamReply_ContextWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := f.journal.Append(ctx, &model.Message{
			ChatID:  f.chat.ID,
			Role:    model.RoleUser,
			Content: "old",
		})
		require.NoError(t, err)
	}

	var seen []llm.ChatMessage
	f.client.streamFn = func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		seen = req.Messages
		return &llm.CompletionResponse{Content: "ok"}, nil
	}

	var events []model.StreamEvent
	err := f.svc.StreamReply(ctx, "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "newest"}, collect(&events))
	require.NoError(t, err)

	// Synthetic system entry plus the 20 most recent messages.
	require.Len(t, seen, 21)
	require.Equal(t, string(model.RoleSystem), seen[0].Role)
	require.Equal(t, model.DefaultSystemPrompt, seen[0].Content)
	require.Equal(t, "newest", seen[len(seen)-1].Content)
}

func TestStreamReply_CustomInstructionsAppended(t *testing.T) {
	f := newFixture(t)
	f.users.Put(&model.User{
		ID:                       "user-1",
		CustomInstructions:       "Answer in French.",
		EnableCustomInstructions: true,
	})

	var seen []llm.ChatMessage
	f.client.streamFn = func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		seen = req.Messages
		return &llm.CompletionResponse{Content: "oui"}, nil
	}

	var events []model.StreamEvent
	err := f.svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	require.Equal(t, model.DefaultSystemPrompt+"\n\nAnswer in French.", seen[0].Content)
}

func TestStreamReply_IdleWatchdogCancelsSilentProvider(t *testing.T) {
	f := newFixture(t)

	svc := NewStreamService(
		f.chats, f.journal, f.users, f.usage,
		&fakeFactory{client: f.client},
		NewTitleGenerator("", logger.NewNop()),
		50*time.Millisecond, 20,
		logger.NewNop(),
	)

	f.client.streamFn = func(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
		// Silent provider: no deltas until the relay context is cancelled.
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var events []model.StreamEvent
	err := svc.StreamReply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"}, collect(&events))
	require.NoError(t, err)

	last := events[len(events)-1]
	require.Equal(t, model.EventError, last.Type)
}

func TestReply_ReturnsAssistantMessageWithUsage(t *testing.T) {
	f := newFixture(t)
	f.client.completeFn = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "full reply", TokensIn: 12, TokensOut: 30}, nil
	}

	resp, err := f.svc.Reply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, "full reply", resp.AssistantMessage.Content)
	require.NotNil(t, resp.AssistantMessage.TokenUsage)
	require.Equal(t, 42, *resp.AssistantMessage.TokenUsage)
	require.Nil(t, resp.UpdatedChat)

	records := f.usage.Records()
	require.Len(t, records, 1)
	require.True(t, records[0].Success)
	require.Equal(t, 12, records[0].InputTokens)
	require.Equal(t, 30, records[0].OutputTokens)
}

func TestReply_CompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.client.completeFn = func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("provider down")
	}

	_, err := f.svc.Reply(context.Background(), "user-1", f.chat.ID,
		&model.SendMessageRequest{Content: "hi"})
	require.Error(t, err)

	records := f.usage.Records()
	require.Len(t, records, 1)
	require.False(t, records[0].Success)

	msgs, err := f.journal.List(context.Background(), f.chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
