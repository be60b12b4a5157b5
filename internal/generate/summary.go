package generate

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const summaryPrompt = "Summarize the following article in two or three sentences, written to be read aloud before the full audio. Reply with the summary only.\n\n"

// AnthropicSummarizer produces listen-before summaries via the Anthropic
// messages API.
type AnthropicSummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicSummarizer(apiKey, model string, maxTokens int) *AnthropicSummarizer {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &AnthropicSummarizer{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(summaryPrompt + text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic summary: %w", err)
	}

	out := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("anthropic summary: empty response")
	}
	return out, nil
}
