package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOllamaClient(server.URL, "test-chat", "test-embed", 5*time.Second)
	require.NoError(t, err)
	return client, server
}

func TestNewOllamaClientValidation(t *testing.T) {
	_, err := NewOllamaClient("", "", "embed", time.Second)
	assert.Error(t, err)

	_, err = NewOllamaClient("", "chat", "", time.Second)
	assert.Error(t, err)

	client, err := NewOllamaClient("", "chat", "embed", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
}

func TestChat(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-chat", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(chatResponse{
			Model:   "test-chat",
			Message: Message{Role: "assistant", Content: "SELECT 1"},
			Done:    true,
		})
	})

	reply, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "You write SQL."},
		{Role: "user", Content: "give me one"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
}

func TestChatEmptyResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Done: true})
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(errorResponse{Error: "loading model"})
			return
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: Message{Role: "assistant", Content: "ok"},
			Done:    true,
		})
	})

	reply, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Error: "model 'test-chat' not found"})
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error 404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)
		assert.Equal(t, "invoice amount", req.Prompt)

		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	})

	vec, err := client.Embed(context.Background(), "invoice amount")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedEmptyVector(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	})

	_, err := client.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty embedding")
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		errMsg    string
		retryable bool
	}{
		{"server error", "API error 500: boom", true},
		{"bad gateway", "API error 502: upstream", true},
		{"timeout", "context deadline exceeded", true},
		{"connection refused", "dial tcp: connection refused", true},
		{"bad request", "API error 400: invalid", false},
		{"missing model", "API error 404: not found", false},
		{"unknown", "something else", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(errFromMsg(tt.errMsg)))
		})
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errFromMsg(msg string) error { return stringError(msg) }

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 5 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		delay := calculateBackoff(attempt, base, max)
		assert.Greater(t, delay, time.Duration(0))
		// Jitter can be up to 1.5x the capped delay
		assert.LessOrEqual(t, delay, time.Duration(float64(max)*1.5))
	}
}

func TestIsHTTPStatusRetryable(t *testing.T) {
	assert.True(t, isHTTPStatusRetryable(http.StatusTooManyRequests))
	assert.True(t, isHTTPStatusRetryable(http.StatusServiceUnavailable))
	assert.False(t, isHTTPStatusRetryable(http.StatusBadRequest))
	assert.False(t, isHTTPStatusRetryable(http.StatusOK))
}
