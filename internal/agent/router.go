package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
)

const routerPrompt = `You are a supervisor routing a user request to the correct worker.
Available workers:
- 'load_data': If the user wants to load, upload, or charge a file.
- 'query_data': If the user explicitly asks to QUERY the data, calculate statistics, or asks "how many", "sum of", "average", "show me".
- 'describe_data': If the user asks general questions about the data structure (e.g. "what is in the data", "describe the tables"), or just wants to chat/say hello.
- 'visualize': If the user asks to visualize data, draw a chart, plot a graph, or "show me the distribution".

User Request: "%s"

Return ONLY the worker name (load_data, query_data, describe_data, or visualize). Do not add any punctuation or explanation.`

var (
	loadKeywords   = []string{"load", "charge", "upload"}
	finishKeywords = []string{"finish", "stop"}
	chartKeywords  = []string{"chart", "graph", "plot", "trace", "dessine", "graphique"}
)

// Router classifies utterances into intents. Cheap keyword checks run
// first; the model only decides ambiguous cases.
type Router struct {
	llm    llm.Client
	logger *observability.Logger
}

// NewRouter creates an intent router
func NewRouter(llmClient llm.Client) *Router {
	return &Router{
		llm:    llmClient,
		logger: observability.NewLogger("router"),
	}
}

// Route returns the intent label for an utterance
func (r *Router) Route(ctx context.Context, utterance string) (string, error) {
	lower := strings.ToLower(utterance)

	if containsAny(lower, loadKeywords...) {
		return IntentLoadData, nil
	}
	if containsAny(lower, finishKeywords...) {
		return IntentFinish, nil
	}

	// A chart result echoed back into the conversation must not trigger
	// another chart generation
	if strings.Contains(lower, "chart_result") && strings.Contains(lower, "type") {
		return IntentFinish, nil
	}

	if containsAny(lower, chartKeywords...) {
		return IntentVisualize, nil
	}

	reply, err := r.llm.Chat(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(routerPrompt, utterance)},
	})
	if err != nil {
		r.logger.Error(ctx, "intent classification failed, defaulting to describe_data", err, nil)
		return IntentDescribeData, errors.NewIntentRoutingError(err, utterance)
	}

	intent := matchIntentLabel(reply)
	r.logger.Debug(ctx, "classified intent", map[string]interface{}{
		"intent": intent,
		"raw":    strings.TrimSpace(reply),
	})
	return intent, nil
}

// matchIntentLabel maps a possibly chatty model reply onto a known label
func matchIntentLabel(reply string) string {
	decision := strings.ToLower(strings.TrimSpace(reply))

	switch {
	case strings.Contains(decision, "query") || strings.Contains(decision, "sql") || strings.Contains(decision, "planner"):
		return IntentQueryData
	case strings.Contains(decision, "load"):
		return IntentLoadData
	case strings.Contains(decision, "describe") || strings.Contains(decision, "analyst"):
		return IntentDescribeData
	case strings.Contains(decision, "visual") || strings.Contains(decision, "chart") || strings.Contains(decision, "graph"):
		return IntentVisualize
	default:
		return IntentDescribeData
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
