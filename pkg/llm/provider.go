package llm

import (
	"context"
	"strings"
)

// Provider is a synchronous chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (Completion, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a finished model response with normalized token usage.
type Completion struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// TotalTokens returns prompt plus completion tokens.
func (c Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

// UserMessage wraps a prompt as a single-turn user message.
func UserMessage(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}

// EstimateTokens approximates the token count of a text.
// GPT-style tokenizers average ~4 chars per token; a blend of word and
// character estimates tracks real counts closely enough for cost accounting
// when the backend does not report usage.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	return (words + chars/4) / 2
}

// fillUsage backfills token counts from estimates when the backend
// response carried no usage block.
func fillUsage(c *Completion, prompt string) {
	if c.PromptTokens == 0 {
		c.PromptTokens = EstimateTokens(prompt)
	}
	if c.CompletionTokens == 0 {
		c.CompletionTokens = EstimateTokens(c.Text)
	}
}
