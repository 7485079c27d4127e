package natsjournal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/parley-ai/chat-platform/internal/model"
)

const (
	// StreamName is the name of the chat message stream.
	StreamName = "CHATS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"

	fetchBatchSize = 100
)

// Journal is a store.MessageJournal backed by JetStream. Messages are
// immutable once published; the stream denies delete and purge.
type Journal struct {
	client *Client
}

// NewJournal creates a journal over an established client.
func NewJournal(client *Client) *Journal {
	return &Journal{client: client}
}

// EnsureStream ensures the chat stream exists with proper configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "All chat messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(chatID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, chatID, role)
}

// chatFilter returns the filter subject for all messages of a chat.
func chatFilter(chatID string) string {
	return fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, chatID)
}

// Append publishes a message and returns its stream sequence.
func (j *Journal) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := j.client.JetStream().Publish(ctx, MessageSubject(msg.ChatID, msg.Role), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	msg.Sequence = ack.Sequence
	return ack.Sequence, nil
}

// List returns all messages of a chat in chronological order.
func (j *Journal) List(ctx context.Context, chatID string) ([]model.Message, error) {
	js := j.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: chatFilter(chatID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var messages []model.Message
	for {
		batch, err := consumer.Fetch(fetchBatchSize, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		n := 0
		for raw := range batch.Messages() {
			var msg model.Message
			if err := json.Unmarshal(raw.Data(), &msg); err != nil {
				continue
			}
			if meta, err := raw.Metadata(); err == nil {
				msg.Sequence = meta.Sequence.Stream
			}
			messages = append(messages, msg)
			n++
		}
		if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
			return nil, fmt.Errorf("batch error: %w", batch.Error())
		}
		if n < fetchBatchSize {
			break
		}
	}

	return messages, nil
}

// Recent returns the trailing limit messages in chronological order.
func (j *Journal) Recent(ctx context.Context, chatID string, limit int) ([]model.Message, error) {
	messages, err := j.List(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}
