package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
)

// InvalidStatementSentinel is returned when the model produced no usable
// SQL; executing it fails in a controlled way and feeds the corrector.
const InvalidStatementSentinel = "SELECT 'ERROR: No valid SQL generated' AS error"

var (
	codeBlockPattern = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)```")
	sqlStartPattern  = regexp.MustCompile(`(?i)\b(SELECT|WITH)\s`)

	// scriptingIndicators reject model output that is code in some other
	// language rather than SQL
	scriptingIndicators = []string{
		"import ", "def ", "print(", "pandas", "pd.", "df.", "python",
		"```python", "excel", ".xlsx", "read_csv", "dataframe",
		"for ", "while ", "if __name__", "class ", "lambda",
	}

	// explanationStarters mark trailing prose appended after the SQL
	explanationStarters = []string{
		"this query", "note:", "the above", "this will",
		"cette requête", "voici", "cela", "remarque:", "le résultat",
	}
)

// SchemaProvider supplies the cached schema summary for prompts
type SchemaProvider func(ctx context.Context) (string, error)

// Planner turns an utterance plus resolved schema context into a SQL
// statement
type Planner struct {
	llm           llm.Client
	schemaSummary SchemaProvider
	relationships func() string
	synonyms      *SynonymTable
	errorLimit    int
	logger        *observability.Logger
}

// NewPlanner creates a SQL planner
func NewPlanner(llmClient llm.Client, schemaSummary SchemaProvider, relationships func() string, synonyms *SynonymTable, errorLimit int) *Planner {
	if errorLimit <= 0 {
		errorLimit = 300
	}
	return &Planner{
		llm:           llmClient,
		schemaSummary: schemaSummary,
		relationships: relationships,
		synonyms:      synonyms,
		errorLimit:    errorLimit,
		logger:        observability.NewLogger("sql-planner"),
	}
}

// Plan generates a SQL statement for the utterance. A previous execution
// error, when present, is fed back into the prompt so the model can avoid
// the same mistake.
func (p *Planner) Plan(ctx context.Context, state *TurnState) (string, error) {
	prompt, err := p.buildPrompt(ctx, state)
	if err != nil {
		return "", err
	}

	reply, err := p.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: state.Utterance},
	})
	if err != nil {
		return "", errors.NewSQLGenerationError(err)
	}

	statement := p.ExtractSQL(reply)
	statement = p.synonyms.Normalize(statement)

	p.logger.Info(ctx, "generated statement", map[string]interface{}{
		"statement": truncate(statement, 120),
	})
	return statement, nil
}

func (p *Planner) buildPrompt(ctx context.Context, state *TurnState) (string, error) {
	var b strings.Builder
	b.WriteString("You are a DuckDB SQL expert. Generate ONLY valid SQL.\n\n")

	if len(state.Mappings) > 0 {
		b.WriteString("RESOLVED COLUMNS (use these exact expressions):\n")
		for _, m := range state.Mappings {
			fmt.Fprintf(&b, "- '%s' → %s.%s", m.Concept, m.Table, m.Column)
			if m.Expression != m.Column {
				fmt.Fprintf(&b, " (USE: %s)", m.Expression)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if s := state.Structure; s != nil {
		if s.PrimaryTable != "" {
			fmt.Fprintf(&b, "PRIMARY TABLE: %s\n", s.PrimaryTable)
		}
		if len(s.RequiredJoins) > 0 {
			b.WriteString("REQUIRED JOINS:\n")
			for _, j := range s.RequiredJoins {
				b.WriteString(j + "\n")
			}
		}
		if len(s.GroupBy) > 0 {
			exprs := make([]string, 0, len(s.GroupBy))
			for _, g := range s.GroupBy {
				exprs = append(exprs, g.Expression)
			}
			fmt.Fprintf(&b, "GROUP BY: %s\n", strings.Join(exprs, ", "))
		}
		if len(s.Aggregations) > 0 {
			concepts := make([]string, 0, len(s.Aggregations))
			for concept := range s.Aggregations {
				concepts = append(concepts, concept)
			}
			sort.Strings(concepts)
			parts := make([]string, 0, len(concepts))
			for _, concept := range concepts {
				parts = append(parts, fmt.Sprintf("%s=%s", concept, s.Aggregations[concept]))
			}
			fmt.Fprintf(&b, "AGGREGATION: %s\n", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}

	summary, err := p.schemaSummary(ctx)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "Available Schema:\n%s\n", summary)
	fmt.Fprintf(&b, "Available Relationships:\n%s\n", p.relationships())

	if state.SQLError != "" {
		fmt.Fprintf(&b, "\nPREVIOUS QUERY FAILED:\n%s\nUse ONLY the columns from RESOLVED COLUMNS above.\n",
			truncate(state.SQLError, p.errorLimit))
	}

	b.WriteString(`
CRITICAL RULES:
1. OUTPUT ONLY SQL - Start with SELECT or WITH
2. Use EXACT expressions from RESOLVED COLUMNS
3. Use the REQUIRED JOINS if multiple tables are needed
4. Use PRIMARY TABLE as the FROM table
5. NO explanations, NO markdown, NO French text
`)
	fmt.Fprintf(&b, "\nUser Query: %s\n\nSQL:", state.Utterance)

	return b.String(), nil
}

// ExtractSQL pulls a SQL statement out of raw model output. Output that is
// clearly code in another language, or contains no SELECT/WITH at all,
// yields the invalid statement sentinel.
func (p *Planner) ExtractSQL(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))

	for _, indicator := range scriptingIndicators {
		if strings.Contains(lower, indicator) {
			return InvalidStatementSentinel
		}
	}

	var sql string
	if m := codeBlockPattern.FindStringSubmatch(raw); m != nil {
		sql = strings.TrimSpace(m[1])
	} else if loc := sqlStartPattern.FindStringIndex(raw); loc != nil {
		sql = strings.TrimSpace(strings.TrimSuffix(raw[loc[0]:], "```"))
	} else {
		return InvalidStatementSentinel
	}

	// Drop any prose the model left before the statement inside a fence
	if loc := sqlStartPattern.FindStringIndex(sql); loc != nil && loc[0] > 0 {
		sql = sql[loc[0]:]
	} else if loc == nil {
		return InvalidStatementSentinel
	}

	// Cut trailing explanatory text
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		stripped := strings.ToLower(strings.TrimSpace(line))
		if startsWithAny(stripped, explanationStarters) {
			break
		}
		kept = append(kept, line)
	}

	sql = strings.TrimSpace(strings.Join(kept, "\n"))
	sql = strings.TrimSpace(strings.TrimRight(sql, ";"))
	if sql == "" {
		return InvalidStatementSentinel
	}
	return sql
}

func startsWithAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// SynonymTable rewrites model-invented table and column names onto real
// schema identifiers with a deterministic word-boundary replacement pass
type SynonymTable struct {
	rules []synonymRule
}

type synonymRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewSynonymTable builds a table from synonym to canonical identifier.
// Longer synonyms are applied first so plural forms win over singulars.
func NewSynonymTable(synonyms map[string]string) *SynonymTable {
	names := make([]string, 0, len(synonyms))
	for name := range synonyms {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	t := &SynonymTable{}
	for _, name := range names {
		t.rules = append(t.rules, synonymRule{
			pattern:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
			replacement: synonyms[name],
		})
	}
	return t
}

// SynonymsForTables derives default synonyms for a set of real table
// names: lowercase forms and forms without a leading prefix like "IA_"
func SynonymsForTables(tables []string) map[string]string {
	synonyms := make(map[string]string)
	for _, table := range tables {
		lower := strings.ToLower(table)
		if lower != table {
			synonyms[lower] = table
		}
		if idx := strings.Index(table, "_"); idx > 0 && idx <= 3 {
			bare := strings.ToLower(table[idx+1:])
			if bare != "" && bare != lower {
				synonyms[bare] = table
			}
		}
	}
	return synonyms
}

// Normalize applies every synonym rule to the statement. Replacements that
// already point at the canonical name are no-ops.
func (t *SynonymTable) Normalize(statement string) string {
	if t == nil {
		return statement
	}
	out := statement
	for _, rule := range t.rules {
		out = rule.pattern.ReplaceAllStringFunc(out, func(match string) string {
			if match == rule.replacement {
				return match
			}
			return rule.replacement
		})
	}
	return out
}
