// Package client provides the Go API client and the client-side chat state
// store consumed by UIs.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parley-ai/chat-platform/internal/model"
)

// Frame is one parsed frame of the event stream.
type Frame struct {
	Event string
	Data  []byte
}

// Client is an HTTP client for the chat API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates an API client. The token is sent as a bearer credential.
func New(server, token string) (*Client, error) {
	baseURL, err := normalizeServerURL(server)
	if err != nil {
		return nil, err
	}

	return &Client{
		// No overall timeout: streaming responses are long-lived.
		httpClient: &http.Client{},
		baseURL:    baseURL,
		token:      token,
	}, nil
}

func normalizeServerURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL")
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// CreateChat creates a new chat with the sentinel title.
func (c *Client) CreateChat(ctx context.Context) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chats", nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats lists the user's chats, newest first.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var resp model.ListChatsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// History returns a chat's full message history.
func (c *Client) History(ctx context.Context, chatID string) ([]model.Message, error) {
	var resp model.ListMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/chats/"+chatID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// UpdateSettings patches a chat's generation settings.
func (c *Client) UpdateSettings(ctx context.Context, chatID string, req *model.UpdateChatSettingsRequest) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPatch, "/api/v1/chats/"+chatID+"/settings", req, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// StreamMessage posts a message and returns the frame sequence of the
// streaming reply. The frames channel is closed after the terminal frame or
// on transport failure; a transport failure is reported on the error
// channel.
func (c *Client) StreamMessage(ctx context.Context, chatID string, req *model.SendMessageRequest) (<-chan Frame, <-chan error, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chats/"+chatID+"/stream", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, nil, decodeAPIError(resp)
	}

	frames := make(chan Frame, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errCh)
		defer resp.Body.Close()
		parseFrames(resp.Body, frames, errCh)
	}()

	return frames, errCh, nil
}

// parseFrames reads SSE frames line by line as data arrives.
func parseFrames(r io.Reader, frames chan<- Frame, errCh chan<- error) {
	scanner := bufio.NewScanner(r)

	// Large deltas are rare but possible.
	const maxScanTokenSize = 1024 * 1024
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	var frame Frame
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if frame.Event != "" {
				frames <- frame
				if frame.Event == string(model.EventDone) || frame.Event == string(model.EventError) {
					return
				}
			}
			frame = Frame{}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event: "):
			frame.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frame.Data = []byte(strings.TrimPrefix(line, "data: "))
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		errCh <- fmt.Errorf("stream read failed: %w", err)
		return
	}
	// EOF without a terminal frame is a transport failure.
	errCh <- fmt.Errorf("stream ended without a terminal frame")
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := c.httpClient.Do(req.WithContext(reqCtx))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("api error (%d)", resp.StatusCode)
}
