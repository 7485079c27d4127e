package sse

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parley-ai/chat-platform/internal/model"
)

type countingFlusher struct {
	flushes int
}

func (f *countingFlusher) Flush() { f.flushes++ }

func TestNewFramer_SetsStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()

	f, err := NewFramer(rec)
	require.NoError(t, err)
	require.NotNil(t, f)

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestNewFramer_RejectsNonFlushableWriter(t *testing.T) {
	_, err := NewFramer(nonFlushableResponseWriter{})
	require.ErrorIs(t, err, ErrStreamingUnsupported)
}

type nonFlushableResponseWriter struct{}

func (nonFlushableResponseWriter) Header() http.Header         { return http.Header{} }
func (nonFlushableResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (nonFlushableResponseWriter) WriteHeader(int)             {}

func TestWriteEvent_FrameFormat(t *testing.T) {
	var buf bytes.Buffer
	flusher := &countingFlusher{}
	f := NewFramerWriter(&buf, flusher)

	require.NoError(t, f.WriteEvent(model.ContentEvent("Hel")))
	require.NoError(t, f.WriteEvent(model.ContentEvent("lo")))
	require.NoError(t, f.WriteEvent(model.DoneEvent()))

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 3)
	require.Equal(t, "event: content\ndata: {\"delta\":\"Hel\"}", frames[0])
	require.Equal(t, "event: content\ndata: {\"delta\":\"lo\"}", frames[1])
	require.Equal(t, "event: done\ndata: {\"success\":true}", frames[2])

	// One flush per frame, so the peer sees deltas as they are produced.
	require.Equal(t, 3, flusher.flushes)
}

func TestWriteEvent_ChatUpdate(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramerWriter(&buf, &countingFlusher{})

	chat := &model.Chat{ID: "c1", Title: "Trip Planning"}
	require.NoError(t, f.WriteEvent(model.ChatUpdateEvent(chat)))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "event: chatUpdate\ndata: "))
	require.Contains(t, out, `"title":"Trip Planning"`)
	require.True(t, strings.HasSuffix(out, "\n\n"))
}

func TestWriteEvent_Error(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramerWriter(&buf, &countingFlusher{})

	require.NoError(t, f.WriteEvent(model.ErrorEvent("Error processing your message.")))
	require.Equal(t, "event: error\ndata: {\"message\":\"Error processing your message.\"}\n\n", buf.String())
}

func TestWriteEvent_UnknownType(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramerWriter(&buf, &countingFlusher{})

	err := f.WriteEvent(model.StreamEvent{Type: "bogus"})
	require.Error(t, err)
	require.Zero(t, buf.Len())
}
