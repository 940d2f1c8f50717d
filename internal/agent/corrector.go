package agent

import (
	"context"
	"fmt"
	"regexp"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/semantic"
)

// MaxCorrectionAttempts is the default rewrite budget for a failing
// statement before the turn gives up
const MaxCorrectionAttempts = 3

// CorrectionOutcome reports one correction attempt
type CorrectionOutcome struct {
	Statement string
	Changes   []string
	Exhausted bool
}

// Corrector rewrites failing SQL by mapping unknown identifiers onto real
// ones. It never calls the model; corrections are deterministic renames
// driven by the error message.
type Corrector struct {
	tables      TableLister
	index       semantic.Index
	llm         llm.Client
	maxAttempts int
	logger      *observability.Logger
}

// NewCorrector creates a SQL corrector. A non-positive maxAttempts falls
// back to MaxCorrectionAttempts.
func NewCorrector(tables TableLister, index semantic.Index, llmClient llm.Client, maxAttempts int) *Corrector {
	if maxAttempts <= 0 {
		maxAttempts = MaxCorrectionAttempts
	}
	return &Corrector{
		tables:      tables,
		index:       index,
		llm:         llmClient,
		maxAttempts: maxAttempts,
		logger:      observability.NewLogger("sql-corrector"),
	}
}

// MaxAttempts returns the rewrite budget per turn
func (c *Corrector) MaxAttempts() int {
	return c.maxAttempts
}

// Correct attempts to fix the statement in state. The retry budget is
// checked first: once the budget is spent the outcome is Exhausted and
// the counter resets, terminating the loop.
func (c *Corrector) Correct(ctx context.Context, state *TurnState) (*CorrectionOutcome, error) {
	if state.RetryCount >= c.maxAttempts {
		c.logger.Error(ctx, "correction attempts exhausted", nil, map[string]interface{}{
			"attempts": state.RetryCount,
			"error":    state.SQLError,
		})
		observability.GetGlobalMetrics().Inc(observability.MetricCorrectionExhausted, nil)
		state.RetryCount = 0
		return &CorrectionOutcome{Exhausted: true}, nil
	}

	state.RetryCount++
	observability.GetGlobalMetrics().Inc(observability.MetricCorrectionAttempts, nil)

	c.logger.Info(ctx, "attempting correction", map[string]interface{}{
		"attempt": state.RetryCount,
		"max":     c.maxAttempts,
	})

	if state.SQLError == "" {
		return &CorrectionOutcome{Statement: state.Statement}, nil
	}

	corrected := state.Statement
	var changes []string

	if badTable := extractTableFromError(state.SQLError); badTable != "" {
		tables, err := c.tables.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		if good := findSimilarName(badTable, tables); good != "" {
			// Only a rewrite that alters the statement counts as progress
			if replaced := replaceIdentifier(corrected, badTable, good); replaced != corrected {
				corrected = replaced
				changes = append(changes, fmt.Sprintf("Replaced table '%s' with '%s'", badTable, good))
			}
		}
	}

	if badCol := extractColumnFromError(state.SQLError); badCol != "" {
		if embedding, err := c.llm.Embed(ctx, badCol); err == nil {
			if matches, err := c.index.Search(ctx, embedding, semantic.KindColumn, 1); err == nil && len(matches) > 0 {
				best := matches[0]
				if replaced := replaceIdentifier(corrected, badCol, best.Column); replaced != corrected {
					corrected = replaced
					changes = append(changes, fmt.Sprintf("Replaced column '%s' with '%s' from %s", badCol, best.Column, best.Table))
				}
			}
		}
	}

	return &CorrectionOutcome{Statement: corrected, Changes: changes}, nil
}

// replaceIdentifier swaps an identifier for another at word boundaries,
// case-insensitively
func replaceIdentifier(statement, from, to string) string {
	pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return pattern.ReplaceAllString(statement, to)
}
