package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestValidateMessageContent(t *testing.T) {
	require.NoError(t, ValidateMessageContent("hello"))
	require.Error(t, ValidateMessageContent(""))
	require.Error(t, ValidateMessageContent(strings.Repeat("x", 100001)))
	require.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))
}

func TestValidateChatID(t *testing.T) {
	require.NoError(t, ValidateChatID(uuid.New().String()))
	require.Error(t, ValidateChatID("not-a-uuid"))
	require.Error(t, ValidateChatID(""))
}

func TestValidateTemperature(t *testing.T) {
	require.NoError(t, ValidateTemperature(0))
	require.NoError(t, ValidateTemperature(0.7))
	require.NoError(t, ValidateTemperature(2))
	require.Error(t, ValidateTemperature(-0.1))
	require.Error(t, ValidateTemperature(2.1))
}

func TestValidateSystemPrompt(t *testing.T) {
	require.NoError(t, ValidateSystemPrompt(""))
	require.NoError(t, ValidateSystemPrompt("You are terse."))
	require.Error(t, ValidateSystemPrompt(strings.Repeat("x", 10001)))
}
