// Package sse frames stream events onto a server-sent-events connection.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/parley-ai/chat-platform/internal/model"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported by connection")

// Flusher is the subset of http.Flusher the framer needs.
type Flusher interface {
	Flush()
}

// Framer serializes StreamEvents as SSE frames, flushing after every frame
// so the peer observes events as they are produced. It is single-writer and
// preserves emission order.
type Framer struct {
	w       io.Writer
	flusher Flusher
}

// NewFramer wraps a response writer, setting SSE headers. Returns
// ErrStreamingUnsupported when the writer cannot flush.
func NewFramer(w http.ResponseWriter) (*Framer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Framer{w: w, flusher: flusher}, nil
}

// NewFramerWriter wraps any writer/flusher pair. Used in tests.
func NewFramerWriter(w io.Writer, flusher Flusher) *Framer {
	return &Framer{w: w, flusher: flusher}
}

// WriteEvent writes one frame for the event and flushes.
func (f *Framer) WriteEvent(ev model.StreamEvent) error {
	switch ev.Type {
	case model.EventChatUpdate:
		return f.write(string(model.EventChatUpdate), ev.Chat)
	case model.EventContent:
		return f.write(string(model.EventContent), model.ContentPayload{Delta: ev.Delta})
	case model.EventDone:
		return f.write(string(model.EventDone), model.DonePayload{Success: true})
	case model.EventError:
		return f.write(string(model.EventError), model.ErrorPayload{Message: ev.Message})
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (f *Framer) write(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(f.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	f.flusher.Flush()
	return nil
}
