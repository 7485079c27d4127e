package llm

import (
	"errors"

	"github.com/parley-ai/chat-platform/internal/model"
)

// ErrNoAPIKey is returned when neither the user nor the server has a key
// for the configured provider.
var ErrNoAPIKey = errors.New("completion provider API key is not configured")

// Factory builds a short-lived provider client for one exchange. A user's
// own API key takes precedence over the server key; the returned client is
// scoped to the exchange that acquired it and must not be cached.
type Factory struct {
	provider  Provider
	serverKey string
}

// NewFactory creates a factory for the configured provider.
func NewFactory(provider Provider, serverKey string) *Factory {
	return &Factory{provider: provider, serverKey: serverKey}
}

// ClientFor acquires a client using the user's key when present.
func (f *Factory) ClientFor(user *model.User) (Client, error) {
	key := f.serverKey
	if user != nil && user.APIKey != "" {
		key = user.APIKey
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(f.provider, key)
}
