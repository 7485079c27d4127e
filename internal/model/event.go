package model

// EventType tags a StreamEvent variant.
type EventType string

const (
	EventChatUpdate EventType = "chatUpdate"
	EventContent    EventType = "content"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// StreamEvent is one event of a streaming exchange. For any stream the
// sequence is chatUpdate? content* (done|error). Exactly one payload field
// is set, selected by Type.
type StreamEvent struct {
	Type EventType

	// Chat is set for EventChatUpdate.
	Chat *Chat

	// Delta is set for EventContent; always a non-empty fragment.
	Delta string

	// Message is set for EventError; a generic user-facing string, never
	// raw provider detail.
	Message string
}

// ChatUpdateEvent builds a chatUpdate event.
func ChatUpdateEvent(chat *Chat) StreamEvent {
	return StreamEvent{Type: EventChatUpdate, Chat: chat}
}

// ContentEvent builds a content delta event.
func ContentEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventContent, Delta: delta}
}

// DoneEvent builds the successful terminal event.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// ErrorEvent builds the failing terminal event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ContentPayload is the wire payload of a content frame.
type ContentPayload struct {
	Delta string `json:"delta"`
}

// DonePayload is the wire payload of a done frame.
type DonePayload struct {
	Success bool `json:"success"`
}

// ErrorPayload is the wire payload of an error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}
