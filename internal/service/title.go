package service

import (
	"context"
	"strings"

	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
)

const titleSystemPrompt = "You are an expert at creating short, concise, and relevant titles " +
	"for chat conversations. Summarize the following user query into a title of 5 words or less. " +
	"Do not use quotation marks in the title."

// TitleGenerator derives a short chat label from the first user message.
// Best effort: provider failures degrade to the sentinel title and are never
// propagated to the caller.
type TitleGenerator struct {
	model  string
	logger *logger.Logger
}

// NewTitleGenerator creates a title generator using the given (fast) model.
func NewTitleGenerator(titleModel string, log *logger.Logger) *TitleGenerator {
	if titleModel == "" {
		titleModel = "gpt-3.5-turbo"
	}
	return &TitleGenerator{model: titleModel, logger: log}
}

// Generate returns a title for the source text, or the sentinel on failure.
// At most one bounded provider round trip.
func (g *TitleGenerator) Generate(ctx context.Context, client llm.Client, sourceText string) string {
	resp, err := client.Complete(ctx, &llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleSystem), Content: titleSystemPrompt},
			{Role: string(model.RoleUser), Content: sourceText},
		},
		MaxTokens:   15,
		Temperature: 0.2,
	})
	if err != nil {
		g.logger.Warn("title generation failed")
		metrics.TitlesGenerated.WithLabelValues("failure").Inc()
		return model.DefaultTitle
	}

	title := strings.TrimSpace(strings.ReplaceAll(resp.Content, `"`, ""))
	if title == "" {
		metrics.TitlesGenerated.WithLabelValues("failure").Inc()
		return model.DefaultTitle
	}

	metrics.TitlesGenerated.WithLabelValues("success").Inc()
	return title
}
