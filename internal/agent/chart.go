package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/transcript"
)

const chartPrompt = `You are a Data Visualization Expert using Plotly.js.

Data Columns: %v
Data Sample (first 3 rows): %v
User Request: "%s"

Task: Generate a valid Plotly JSON configuration (data and layout) to visualize this data.

CRITICAL RULES:
1. Return ONLY the JSON object. NO markdown, NO explanations.
2. The JSON must have "data" (array) and "layout" (object) keys.
3. Use "x" and "y" keys in "data" mapped to the correct column names from the data.
4. Since you don't have the full data arrays, use placeholders like "__COLUMN_NAME__" for the x and y arrays.
   The backend will replace these placeholders with the actual data arrays.
   Example: "x": "__Date__", "y": "__Sales__"
5. Make the chart interactive and beautiful (dark mode compatible if possible).`

const suggestionPrompt = `You are a Data Visualization Expert.
Data Columns: %v
Data Sample: %v

Task: Suggest 3 to 4 varied and relevant charts to visualize this data.

Return a JSON array of objects with keys:
- "title": Short descriptive title (e.g. "Distribution des ventes par pays")
- "type": Chart type (bar, line, pie, scatter, etc.)
- "description": Why this chart is useful (1 sentence)
- "intent": A specific user query that would generate this chart (e.g. "Trace un camembert des ventes par pays")

IMPORTANT: Return ONLY the JSON array. Output in FRENCH.`

// chartTypeWords are explicit chart types a specific request names
var chartTypeWords = []string{"camembert", "barres", "ligne", "pie", "bar", "line", "scatter", "nuage"}

// DataResult is tabular data a chart can be built from
type DataResult struct {
	Type    string           `json:"type"`
	Summary string           `json:"summary,omitempty"`
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
}

// Suggestion is one proposed chart for a generic request
type Suggestion struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Intent      string `json:"intent"`
}

// ChartGenerator builds Plotly configurations from query results
type ChartGenerator struct {
	llm    llm.Client
	logger *observability.Logger
}

// NewChartGenerator creates a chart generator
func NewChartGenerator(llmClient llm.Client) *ChartGenerator {
	return &ChartGenerator{
		llm:    llmClient,
		logger: observability.NewLogger("chart-generator"),
	}
}

// FindLastDataResult scans the transcript backwards for the most recent
// tabular result
func FindLastDataResult(history []transcript.Message) *DataResult {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role != "assistant" || !strings.HasPrefix(strings.TrimSpace(msg.Content), "{") {
			continue
		}
		var data DataResult
		if err := json.Unmarshal([]byte(msg.Content), &data); err != nil {
			continue
		}
		if data.Type == "data_result" {
			return &data
		}
	}
	return nil
}

// IsGenericRequest reports whether the request asks for "a chart" without
// naming a type, which calls for suggestions instead of a single chart
func IsGenericRequest(request string) bool {
	lower := strings.ToLower(request)
	if strings.Contains(lower, "génère un graphique") || strings.Contains(lower, "standard") || len(lower) < 50 {
		for _, t := range chartTypeWords {
			if strings.Contains(lower, t) {
				return false
			}
		}
		return true
	}
	return false
}

// Generate builds a Plotly configuration for a specific chart request and
// injects the actual data arrays in place of column placeholders
func (g *ChartGenerator) Generate(ctx context.Context, data *DataResult, request string) (map[string]any, error) {
	prompt := fmt.Sprintf(chartPrompt, data.Columns, sampleRows(data.Data, 3), request)

	reply, err := g.llm.Chat(ctx, []llm.Message{{Role: "system", Content: prompt}})
	if err != nil {
		return nil, errors.NewChartGenerationError(err)
	}

	var config map[string]any
	if err := json.Unmarshal([]byte(cleanJSONResponse(reply)), &config); err != nil {
		return nil, errors.NewChartGenerationError(err)
	}

	InjectData(config, data)
	observability.GetGlobalMetrics().Inc(observability.MetricChartsGenerated, nil)
	return config, nil
}

// Suggest proposes charts for a generic visualization request
func (g *ChartGenerator) Suggest(ctx context.Context, data *DataResult) ([]Suggestion, error) {
	prompt := fmt.Sprintf(suggestionPrompt, data.Columns, sampleRows(data.Data, 3))

	reply, err := g.llm.Chat(ctx, []llm.Message{{Role: "system", Content: prompt}})
	if err != nil {
		return nil, errors.NewChartGenerationError(err)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(cleanJSONResponse(reply)), &suggestions); err != nil {
		return nil, errors.NewChartGenerationError(err)
	}
	return suggestions, nil
}

// InjectData recursively replaces __COLUMN__ placeholder strings in the
// configuration with the full data arrays for those columns
func InjectData(config map[string]any, data *DataResult) {
	colData := make(map[string][]any, len(data.Columns))
	for _, col := range data.Columns {
		values := make([]any, 0, len(data.Data))
		for _, row := range data.Data {
			values = append(values, row[col])
		}
		colData[col] = values
	}
	injectValue(config, colData)
}

func injectValue(obj any, colData map[string][]any) {
	switch v := obj.(type) {
	case map[string]any:
		for key, value := range v {
			if str, ok := value.(string); ok && strings.HasPrefix(str, "__") && strings.HasSuffix(str, "__") && len(str) > 4 {
				if values, found := colData[str[2:len(str)-2]]; found {
					v[key] = values
					continue
				}
			}
			injectValue(value, colData)
		}
	case []any:
		for _, item := range v {
			injectValue(item, colData)
		}
	}
}

// cleanJSONResponse strips markdown code fences the model may wrap JSON in
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = content[3:]
		}
		if strings.HasSuffix(content, "```") {
			if idx := strings.LastIndex(content, "\n"); idx >= 0 {
				content = content[:idx]
			} else {
				content = content[:len(content)-3]
			}
		}
	}
	return strings.TrimSpace(content)
}
