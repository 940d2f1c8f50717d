package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/semantic"
)

var (
	tableRefPattern   = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[\w]+"?)`)
	columnErrPattern  = regexp.MustCompile(`(?i)column "?(\w+)"? not found|Referenced column "?(\w+)"? not found`)
	tableErrPattern   = regexp.MustCompile(`(?i)Table.*"(\w+)".*not found|Table with name (\w+) does not exist`)
)

// ValidationResult reports whether a statement can run against the schema
type ValidationResult struct {
	Valid       bool
	Errors      []string
	Suggestions []string
}

// Explainer plans a statement without running it
type Explainer interface {
	Explain(ctx context.Context, statement string) error
}

// TableLister reports the tables the pipeline may reference. Production
// wiring passes the schema cache here so membership checks stay off the
// warehouse inside the TTL window.
type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// Validator checks generated SQL against the schema before execution
type Validator struct {
	warehouse Explainer
	tables    TableLister
	index     semantic.Index
	llm       llm.Client
	logger    *observability.Logger
}

// NewValidator creates a SQL validator
func NewValidator(wh Explainer, tables TableLister, index semantic.Index, llmClient llm.Client) *Validator {
	return &Validator{
		warehouse: wh,
		tables:    tables,
		index:     index,
		llm:       llmClient,
		logger:    observability.NewLogger("sql-validator"),
	}
}

// Validate checks referenced tables exist and that the database can plan
// the statement. Suggestions name the closest real identifier when one
// can be found.
func (v *Validator) Validate(ctx context.Context, statement string) (*ValidationResult, error) {
	result := &ValidationResult{}

	tables, err := v.tables.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	for _, ref := range referencedTables(statement) {
		if !containsTable(tables, ref) {
			result.Errors = append(result.Errors, fmt.Sprintf("Table '%s' does not exist", ref))
			if similar := findSimilarName(ref, tables); similar != "" {
				result.Suggestions = append(result.Suggestions, fmt.Sprintf("Did you mean '%s'?", similar))
			}
		}
	}

	if err := v.warehouse.Explain(ctx, statement); err != nil {
		errMsg := err.Error()
		result.Errors = append(result.Errors, fmt.Sprintf("Syntax error: %s", errMsg))

		if badCol := extractColumnFromError(errMsg); badCol != "" {
			if suggestion := v.suggestColumn(ctx, badCol); suggestion != "" {
				result.Suggestions = append(result.Suggestions, suggestion)
			}
		}
	}

	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		v.logger.Warn(ctx, "statement failed validation", map[string]interface{}{
			"errors": strings.Join(result.Errors, "; "),
		})
		observability.GetGlobalMetrics().Inc(observability.MetricValidationFailures, nil)
	}

	return result, nil
}

// suggestColumn finds the closest real column for a misspelled one via
// semantic search over the column documents
func (v *Validator) suggestColumn(ctx context.Context, badColumn string) string {
	embedding, err := v.llm.Embed(ctx, badColumn)
	if err != nil {
		return ""
	}
	matches, err := v.index.Search(ctx, embedding, semantic.KindColumn, 1)
	if err != nil || len(matches) == 0 {
		return ""
	}
	best := matches[0]
	return fmt.Sprintf("Column '%s' not found. Did you mean '%s' from table '%s'?", badColumn, best.Column, best.Table)
}

// referencedTables extracts table names after FROM and JOIN keywords
func referencedTables(statement string) []string {
	var tables []string
	seen := map[string]bool{}
	for _, m := range tableRefPattern.FindAllStringSubmatch(statement, -1) {
		name := strings.Trim(m[1], `"`)
		// Subquery opens, not a table reference
		if name == "" || strings.EqualFold(name, "select") {
			continue
		}
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}

func containsTable(tables []string, name string) bool {
	for _, t := range tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// findSimilarName returns the candidate that matches exactly ignoring
// case, or shares a substring with the name
func findSimilarName(name string, candidates []string) string {
	lower := strings.ToLower(name)
	for _, c := range candidates {
		if strings.ToLower(c) == lower {
			return c
		}
	}
	for _, c := range candidates {
		cl := strings.ToLower(c)
		if strings.Contains(cl, lower) || strings.Contains(lower, cl) {
			return c
		}
	}
	return ""
}

// extractColumnFromError pulls the offending column name out of a
// database error message
func extractColumnFromError(errMsg string) string {
	m := columnErrPattern.FindStringSubmatch(errMsg)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// extractTableFromError pulls the offending table name out of a database
// error message
func extractTableFromError(errMsg string) string {
	m := tableErrPattern.FindStringSubmatch(errMsg)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
