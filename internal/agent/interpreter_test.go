package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

func testSchemaSummary(ctx context.Context) (string, error) {
	return "Table factures:\n  - montant_ht (VARCHAR)", nil
}

func TestInterpretSkipsRawSQLMode(t *testing.T) {
	i := NewInterpreter(&scriptedLLM{
		chatFn: func(ctx context.Context, messages []llm.Message) (string, error) {
			t.Fatal("raw SQL mode must not call the model")
			return "", nil
		},
	}, testSchemaSummary)

	state := NewTurnState("SELECT 1", "sql")
	reply, err := i.Interpret(context.Background(), state, nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestInterpretSkipsPendingChart(t *testing.T) {
	i := NewInterpreter(&scriptedLLM{
		chatFn: func(ctx context.Context, messages []llm.Message) (string, error) {
			t.Fatal("pending chart turns end in the chart step")
			return "", nil
		},
	}, testSchemaSummary)

	state := NewTurnState("trace un graphique", "chat")
	state.PendingChartRequest = "trace un graphique"

	reply, err := i.Interpret(context.Background(), state, nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestInterpretIncludesResultSample(t *testing.T) {
	var got []llm.Message
	i := NewInterpreter(&scriptedLLM{
		chatFn: func(ctx context.Context, messages []llm.Message) (string, error) {
			got = messages
			return "Le montant total est 30,5 euros.", nil
		},
	}, testSchemaSummary)

	state := NewTurnState("total des factures", "chat")
	state.Result = &warehouse.Result{
		Columns:  []string{"amount"},
		Rows:     []map[string]any{{"amount": 30.5}},
		RowCount: 1,
	}

	history := []transcript.Message{
		{Role: "user", Content: "bonjour"},
		{Role: "tool", Content: "ancien résultat"},
	}

	reply, err := i.Interpret(context.Background(), state, history)
	require.NoError(t, err)
	assert.Equal(t, "Le montant total est 30,5 euros.", reply)

	require.Len(t, got, 4)
	assert.Equal(t, "system", got[0].Role)
	assert.Contains(t, got[0].Content, "Table factures")
	assert.Equal(t, "user", got[2].Role, "unknown transcript roles coerce to user")

	last := got[3]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content, "total des factures")
	assert.Contains(t, last.Content, "Query result (1 rows")
}

func TestSampleRows(t *testing.T) {
	rows := make([]map[string]any, 30)
	assert.Len(t, sampleRows(rows, 20), 20)
	assert.Len(t, sampleRows(rows[:5], 20), 5)
}
