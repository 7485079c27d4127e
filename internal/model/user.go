package model

import (
	"time"
)

// User is the authenticated identity consumed by the chat pipeline.
// Issuance and credential storage live in the external auth service; this
// is the projection the orchestrator needs.
type User struct {
	ID                       string    `json:"id"`
	Email                    string    `json:"email"`
	DisplayName              string    `json:"display_name"`
	CustomInstructions       string    `json:"custom_instructions"`
	EnableCustomInstructions bool      `json:"enable_custom_instructions"`
	APIKey                   string    `json:"api_key,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

// UsageRecord captures token accounting for one completed provider call.
// Exact counts are only guaranteed on the non-streaming path.
type UsageRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ChatID       string    `json:"chat_id"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}
