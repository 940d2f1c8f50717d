package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/internal/relationship"
)

// QueryStructure is a suggested shape for a SQL statement, derived from
// resolved concepts and declared relationships. It feeds the generation
// prompt as a hint, not a finished query.
type QueryStructure struct {
	PrimaryTable  string            `json:"primary_table"`
	Mappings      []ColumnMapping   `json:"mappings"`
	Aggregations  map[string]string `json:"aggregations"`
	GroupBy       []ColumnMapping   `json:"group_by"`
	Tables        []string          `json:"tables"`
	RequiredJoins []string          `json:"required_joins"`
}

// Structurer suggests query structures from utterances
type Structurer struct {
	resolver *Resolver
	rels     *relationship.Store
}

// NewStructurer creates a query structure suggester
func NewStructurer(resolver *Resolver, rels *relationship.Store) *Structurer {
	return &Structurer{resolver: resolver, rels: rels}
}

// Suggest analyzes an utterance and proposes tables, column expressions,
// aggregations, grouping, and join clauses. Returns nil when no concept
// in the utterance resolves to a column.
func (s *Structurer) Suggest(ctx context.Context, utterance string) (*QueryStructure, error) {
	mappings, err := s.resolver.ResolveConcepts(ctx, utterance)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, nil
	}

	lower := strings.ToLower(utterance)

	structure := &QueryStructure{
		Mappings:     mappings,
		Aggregations: map[string]string{},
	}

	seen := map[string]bool{}
	for _, m := range mappings {
		if !seen[m.Table] {
			seen[m.Table] = true
			structure.Tables = append(structure.Tables, m.Table)
		}
	}

	structure.PrimaryTable = pickPrimaryTable(lower, mappings, structure.Tables)

	if containsAny(lower, "total", "somme", "sum", "chiffre") {
		for _, m := range mappings {
			if m.Concept == ConceptAmount {
				structure.Aggregations[ConceptAmount] = "SUM"
			}
		}
	}
	if containsAny(lower, "nombre", "count", "combien") {
		structure.Aggregations["count"] = "COUNT"
	}

	for _, m := range mappings {
		if _, aggregated := structure.Aggregations[m.Concept]; !aggregated && m.Concept != ConceptAmount {
			structure.GroupBy = append(structure.GroupBy, m)
		}
	}

	if len(structure.Tables) > 1 && structure.PrimaryTable != "" {
		others := make([]string, 0, len(structure.Tables)-1)
		for _, t := range structure.Tables {
			if t != structure.PrimaryTable {
				others = append(others, t)
			}
		}
		for _, join := range s.rels.PlanJoins(structure.PrimaryTable, others) {
			structure.RequiredJoins = append(structure.RequiredJoins,
				fmt.Sprintf("JOIN %s ON %s.%s = %s.%s",
					join.Table, join.LeftTable, join.LeftColumn, join.Table, join.RightColumn))
		}
	}

	return structure, nil
}

// SelectClause renders the mapped expressions as a SELECT list with
// aggregations applied and concept names as aliases
func (q *QueryStructure) SelectClause() string {
	var parts []string
	for _, m := range q.Mappings {
		expr := m.Expression
		if agg, ok := q.Aggregations[m.Concept]; ok {
			expr = fmt.Sprintf("%s(%s)", agg, expr)
		}
		parts = append(parts, fmt.Sprintf("%s AS %s", expr, strings.ReplaceAll(m.Concept, " ", "_")))
	}
	return strings.Join(parts, ", ")
}

// Describe renders the structure as prompt-ready text
func (q *QueryStructure) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Primary table: %s\n", q.PrimaryTable)
	for _, m := range q.Mappings {
		fmt.Fprintf(&b, "Concept %q maps to %s.%s (use %s)\n", m.Concept, m.Table, m.Column, m.Expression)
	}
	for concept, agg := range q.Aggregations {
		fmt.Fprintf(&b, "Aggregate %s with %s\n", concept, agg)
	}
	for _, join := range q.RequiredJoins {
		fmt.Fprintf(&b, "Use join: %s\n", join)
	}
	return b.String()
}

// pickPrimaryTable prefers the table the utterance names, falling back to
// the table with the most resolved columns
func pickPrimaryTable(lower string, mappings []ColumnMapping, tables []string) string {
	for _, keyword := range []string{"facture", "commande", "dépense", "depense", "règlement", "reglement", "client"} {
		if !strings.Contains(lower, keyword) {
			continue
		}
		norm := strings.Map(stripAccent, keyword)
		for _, t := range tables {
			if strings.Contains(strings.Map(stripAccent, strings.ToLower(t)), norm) {
				return t
			}
		}
	}

	counts := map[string]int{}
	for _, m := range mappings {
		counts[m.Table]++
	}
	best := ""
	for _, t := range tables {
		if best == "" || counts[t] > counts[best] {
			best = t
		}
	}
	return best
}

func stripAccent(r rune) rune {
	switch r {
	case 'é', 'è', 'ê':
		return 'e'
	case 'à', 'â':
		return 'a'
	case 'ç':
		return 'c'
	default:
		return r
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
