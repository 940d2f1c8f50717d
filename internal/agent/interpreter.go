package agent

import (
	"context"
	"fmt"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/transcript"
)

const interpreterPrompt = `You are a helpful Data Analyst.
You have access to the following database schema:
%s

If the user asks about the data structure, describe the tables and columns available.
If the user provides data results, interpret them concisely.

CRITICAL INSTRUCTION:
1. YOU MUST ANSWER IN FRENCH ONLY. (RÉPONDRE UNIQUEMENT EN FRANÇAIS).
2. DO NOT output English text.
3. DO NOT output internal artifacts like '__{...}__'.
4. Be concise and professional.`

// Interpreter turns raw results and questions about the data into
// conversational replies
type Interpreter struct {
	llm           llm.Client
	schemaSummary SchemaProvider
	logger        *observability.Logger
}

// NewInterpreter creates a result interpreter
func NewInterpreter(llmClient llm.Client, schemaSummary SchemaProvider) *Interpreter {
	return &Interpreter{
		llm:           llmClient,
		schemaSummary: schemaSummary,
		logger:        observability.NewLogger("data-analyst"),
	}
}

// Interpret produces the conversational reply for a turn. The transcript
// provides context; the last entries normally hold the executed query's
// result. Returns an empty reply in raw SQL mode and when a chart request
// is still pending, since those turns end elsewhere.
func (i *Interpreter) Interpret(ctx context.Context, state *TurnState, history []transcript.Message) (string, error) {
	if state.Mode == "sql" {
		return "", nil
	}
	if state.PendingChartRequest != "" {
		return "", nil
	}

	summary, err := i.schemaSummary(ctx)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(interpreterPrompt, summary)},
	}
	for _, msg := range history {
		role := msg.Role
		if role != "user" && role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: interpretationInput(state)})

	reply, err := i.llm.Chat(ctx, messages)
	if err != nil {
		return "", errors.NewTextGenerationError(err)
	}
	return reply, nil
}

// interpretationInput is what the analyst actually reacts to: the result
// of the executed query when there is one, the utterance otherwise
func interpretationInput(state *TurnState) string {
	if state.Result == nil {
		return state.Utterance
	}
	return fmt.Sprintf("%s\n\nQuery result (%d rows, columns %v): %v",
		state.Utterance, state.Result.RowCount, state.Result.Columns, sampleRows(state.Result.Rows, 20))
}

func sampleRows(rows []map[string]any, limit int) []map[string]any {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}
