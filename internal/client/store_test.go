package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parley-ai/chat-platform/internal/model"
)

// testServer fakes the chat API: one chat, a scripted stream handler.
type testServer struct {
	chat      model.Chat
	streamFn  func(w http.ResponseWriter, r *http.Request)
	sendReqCh chan *model.SendMessageRequest
}

func newTestServer(t *testing.T, streamFn func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *testServer) {
	t.Helper()

	ts := &testServer{
		chat: model.Chat{
			ID:           "c1",
			UserID:       "u1",
			Title:        model.DefaultTitle,
			Model:        model.DefaultModel,
			Temperature:  model.DefaultTemperature,
			SystemPrompt: model.DefaultSystemPrompt,
		},
		streamFn:  streamFn,
		sendReqCh: make(chan *model.SendMessageRequest, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ts.chat)
	})
	mux.HandleFunc("GET /api/v1/chats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.ListChatsResponse{Chats: []model.Chat{ts.chat}, Total: 1})
	})
	mux.HandleFunc("GET /api/v1/chats/c1/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.ListMessagesResponse{})
	})
	mux.HandleFunc("POST /api/v1/chats/c1/stream", func(w http.ResponseWriter, r *http.Request) {
		var req model.SendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		select {
		case ts.sendReqCh <- &req:
		default:
		}
		ts.streamFn(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, ts
}

func writeFrame(w http.ResponseWriter, event string, data interface{}) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	w.(http.Flusher).Flush()
}

func newTestStore(t *testing.T, url string) *Store {
	t.Helper()
	api, err := New(url, "test-token")
	require.NoError(t, err)
	return NewStore(api)
}

func TestSend_PlaceholderAccumulatesDeltas(t *testing.T) {
	server, ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		updated := model.Chat{ID: "c1", UserID: "u1", Title: "Trip Planning", Model: "gpt-4"}
		writeFrame(w, string(model.EventChatUpdate), updated)
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "Hel"})
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "lo"})
		writeFrame(w, string(model.EventDone), model.DonePayload{Success: true})
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Send(ctx, "plan a trip"))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, model.RoleUser, msgs[0].Role)
	require.Equal(t, "plan a trip", msgs[0].Content)
	require.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Equal(t, "Hello", msgs[1].Content)
	require.False(t, store.Busy())

	// The chatUpdate frame reconciled the chat list entry.
	chats := store.Chats()
	require.Equal(t, "Trip Planning", chats[0].Title)

	// The chat's stored settings ride along with the first send.
	req := <-ts.sendReqCh
	require.Equal(t, model.DefaultModel, req.Model)
	require.NotNil(t, req.Temperature)
	require.Equal(t, model.DefaultTemperature, *req.Temperature)
}

func TestSend_ErrorFrameResolvesPlaceholder(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "par"})
		writeFrame(w, string(model.EventError), model.ErrorPayload{Message: "Error processing your message."})
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)

	// An error frame is a normal terminal outcome, not a transport failure.
	require.NoError(t, store.Send(ctx, "hi"))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, StreamErrorText, msgs[1].Content)
	require.False(t, store.Busy())
}

func TestSend_TransportCutResolvesPlaceholder(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "par"})
		// Connection drops with no terminal frame.
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)

	err = store.Send(ctx, "hi")
	require.Error(t, err)

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, StreamErrorText, msgs[1].Content)
	require.False(t, store.Busy())
}

func TestSend_RejectedRequestResolvesPlaceholder(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "another stream is active for this chat"})
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)

	err = store.Send(ctx, "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "another stream is active")

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, StreamErrorText, msgs[1].Content)
	require.False(t, store.Busy())
}

func TestSend_NoActiveChat(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	store := newTestStore(t, server.URL)
	err := store.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNoActiveChat)
}

func TestSend_BusyGuard(t *testing.T) {
	release := make(chan struct{})
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "thinking"})
		<-release
		writeFrame(w, string(model.EventDone), model.DonePayload{Success: true})
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- store.Send(ctx, "first") }()

	// Wait until the first delta marks the store busy.
	require.Eventually(t, store.Busy, time.Second, 5*time.Millisecond)

	err = store.Send(ctx, "second")
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	require.False(t, store.Busy())
}

func TestSelectChat_ReplacesLocalMessagesWithHistory(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeFrame(w, string(model.EventContent), model.ContentPayload{Delta: "reply"})
		writeFrame(w, string(model.EventDone), model.DonePayload{Success: true})
	})

	store := newTestStore(t, server.URL)
	ctx := context.Background()
	_, err := store.NewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Send(ctx, "hi"))
	require.Len(t, store.Messages(), 2)

	// Reselecting replaces optimistic local records with server history.
	require.NoError(t, store.SelectChat(ctx, "c1"))
	require.Empty(t, store.Messages())
	require.Equal(t, "c1", store.ActiveChatID())
}
