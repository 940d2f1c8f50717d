package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	Temperature    = 0.1 // Low temperature for consistent SQL generation
)

// OllamaClient implements the Client interface against a local Ollama runtime
type OllamaClient struct {
	baseURL    string
	chatModel  string
	embedModel string
	client     *http.Client
}

// Ollama API request structures
type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Model     string  `json:"model"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
	EvalCount int     `json:"eval_count"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, chatModel, embedModel string, timeout time.Duration) (*OllamaClient, error) {
	if chatModel == "" {
		return nil, fmt.Errorf("chat model is required")
	}
	if embedModel == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL:    baseURL,
		chatModel:  chatModel,
		embedModel: embedModel,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Chat sends a conversation to the model and returns the assistant reply
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	request := chatRequest{
		Model:    c.chatModel,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: Temperature},
	}

	response, err := c.sendChatRequestWithRetry(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to send request to Ollama: %w", err)
	}

	if response.Message.Content == "" {
		return "", fmt.Errorf("Ollama returned an empty response")
	}

	return response.Message.Content, nil
}

// Embed returns a vector embedding for the given text
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	request := embedRequest{
		Model:  c.embedModel,
		Prompt: text,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp.StatusCode, respBody)
	}

	var embedResp embedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("Ollama returned an empty embedding")
	}

	return embedResp.Embedding, nil
}

// sendChatRequest performs a single chat completion call
func (c *OllamaClient) sendChatRequest(ctx context.Context, request chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse chat response: %w", err)
	}

	return &chatResp, nil
}

// parseErrorResponse turns an Ollama error payload into a descriptive error
func (c *OllamaClient) parseErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("API error %d: %s", statusCode, errResp.Error)
	}
	return fmt.Errorf("API error %d: %s", statusCode, string(body))
}
