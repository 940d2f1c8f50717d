package llm

import (
	"context"
)

// Message is a single turn in a chat exchange
type Message struct {
	Role    string `json:"role"` // system, user, or assistant
	Content string `json:"content"`
}

// Client interface for language model integration
type Client interface {
	// Chat sends a conversation to the model and returns the assistant reply
	Chat(ctx context.Context, messages []Message) (string, error)

	// Embed returns a vector embedding for the given text
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for LLM clients
type Config struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    int
}
