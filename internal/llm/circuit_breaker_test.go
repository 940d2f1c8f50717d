package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	chatReply string
	chatErr   error
	embedding []float32
	embedErr  error
	calls     int
}

func (f *fakeClient) Chat(ctx context.Context, messages []Message) (string, error) {
	f.calls++
	return f.chatReply, f.chatErr
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.embedding, f.embedErr
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	fake := &fakeClient{chatReply: "hello", embedding: []float32{1, 2}}
	cb := NewCircuitBreakerClient(fake, "test", DefaultCircuitBreakerConfig)

	reply, err := cb.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	vec, err := cb.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	fake := &fakeClient{chatErr: errors.New("connection refused")}
	config := CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {},
	}
	cb := NewCircuitBreakerClient(fake, "test", config)

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	// Once open, calls fail fast without hitting the client
	callsBefore := fake.calls
	_, err := cb.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, callsBefore, fake.calls)
}
