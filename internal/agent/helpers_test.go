package agent

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/semantic"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

// scriptedLLM dispatches chat calls on prompt content so one fake can play
// router, planner, analyst, and chart generator in the same turn
type scriptedLLM struct {
	chatFn  func(ctx context.Context, messages []llm.Message) (string, error)
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if s.chatFn != nil {
		return s.chatFn(ctx, messages)
	}
	return "", nil
}

func (s *scriptedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedFn != nil {
		return s.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// stubIndex returns the same matches for every search
type stubIndex struct {
	matches []semantic.Match
	err     error
}

func (f *stubIndex) Upsert(ctx context.Context, doc semantic.Document, embedding []float32) error {
	return nil
}

func (f *stubIndex) Search(ctx context.Context, embedding []float32, kind string, topK int) ([]semantic.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.matches) {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

func (f *stubIndex) DeleteByTable(ctx context.Context, table string) error { return nil }

func (f *stubIndex) Stats(ctx context.Context) (semantic.IndexStats, error) {
	return semantic.IndexStats{}, nil
}

// stubWarehouse is an Executor with scripted behavior
type stubWarehouse struct {
	tables     []string
	explainErr error
	executeFn  func(ctx context.Context, statement string) (*warehouse.Result, error)

	executeCalls int
}

func (f *stubWarehouse) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *stubWarehouse) Explain(ctx context.Context, statement string) error {
	return f.explainErr
}

func (f *stubWarehouse) Execute(ctx context.Context, statement string) (*warehouse.Result, error) {
	f.executeCalls++
	if f.executeFn != nil {
		return f.executeFn(ctx, statement)
	}
	return &warehouse.Result{Columns: []string{}, Rows: []map[string]any{}}, nil
}

func newTestTranscripts(t *testing.T) *transcript.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return transcript.NewStore(client)
}

func collectEvents(events *[]Event) EventSink {
	return func(e Event) { *events = append(*events, e) }
}
