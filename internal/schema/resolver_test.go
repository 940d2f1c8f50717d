package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/semantic"
)

type fakeIndex struct {
	matches []semantic.Match
}

func (f *fakeIndex) Upsert(ctx context.Context, doc semantic.Document, embedding []float32) error {
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, embedding []float32, kind string, topK int) ([]semantic.Match, error) {
	return f.matches, nil
}

func (f *fakeIndex) DeleteByTable(ctx context.Context, table string) error { return nil }

func (f *fakeIndex) Stats(ctx context.Context) (semantic.IndexStats, error) {
	return semantic.IndexStats{}, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return "", nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeTables struct {
	tables []string
}

func (f *fakeTables) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, nil
}

func columnMatch(table, column, dtype string, sim float64) semantic.Match {
	return semantic.Match{
		Document: semantic.Document{
			Kind:     semantic.KindColumn,
			Table:    table,
			Column:   column,
			DataType: dtype,
		},
		Similarity: sim,
	}
}

func TestExtractConcepts(t *testing.T) {
	tests := []struct {
		utterance string
		expected  []string
	}{
		{"quel est le total des factures", []string{ConceptAmount, ConceptInvoice}},
		{"total invoices by year", []string{ConceptAmount, ConceptInvoice, ConceptYear}},
		{"liste des fournisseurs", []string{ConceptSupplier}},
		{"combien de commandes par mois", []string{ConceptOrder, ConceptMonth}},
		{"liste des opérations", []string{ConceptOperation}},
		{"operations by code", []string{ConceptOperation, ConceptIdentifier}},
		{"hello there", nil},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractConcepts(tt.utterance))
		})
	}
}

func TestAmountPrefersNonEURColumn(t *testing.T) {
	index := &fakeIndex{matches: []semantic.Match{
		columnMatch("factures", "montant_ligne_eur", "VARCHAR", 0.95),
		columnMatch("factures", "montant_ligne", "VARCHAR", 0.90),
	}}
	r := NewResolver(index, &fakeEmbedder{}, &fakeTables{tables: []string{"factures"}}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "montant des factures")
	require.NoError(t, err)
	require.NotEmpty(t, mappings)

	amount := mappings[0]
	assert.Equal(t, ConceptAmount, amount.Concept)
	assert.Equal(t, "montant_ligne", amount.Column)
	assert.True(t, amount.NeedsCast)
	assert.Equal(t, "CAST(REPLACE(montant_ligne, ',', '.') AS DOUBLE)", amount.Expression)
}

func TestAmountFallsBackToPlainMontant(t *testing.T) {
	index := &fakeIndex{matches: []semantic.Match{
		columnMatch("factures", "total_eur", "VARCHAR", 0.95),
		columnMatch("factures", "montant_ht", "VARCHAR", 0.85),
	}}
	r := NewResolver(index, &fakeEmbedder{}, &fakeTables{tables: []string{"factures"}}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "montant des factures")
	require.NoError(t, err)
	require.NotEmpty(t, mappings)
	assert.Equal(t, "montant_ht", mappings[0].Column)
}

func TestYearCastOnDateColumn(t *testing.T) {
	index := &fakeIndex{matches: []semantic.Match{
		columnMatch("factures", "date_facture", "DATE", 0.9),
	}}
	r := NewResolver(index, &fakeEmbedder{}, &fakeTables{tables: []string{"factures"}}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "factures par année")
	require.NoError(t, err)

	var year *ColumnMapping
	for i := range mappings {
		if mappings[i].Concept == ConceptYear {
			year = &mappings[i]
		}
	}
	require.NotNil(t, year)
	assert.True(t, year.NeedsCast)
	assert.Equal(t, "YEAR(date_facture)", year.Expression)
}

func TestYearNoCastOnPlainColumn(t *testing.T) {
	index := &fakeIndex{matches: []semantic.Match{
		columnMatch("factures", "annee", "INTEGER", 0.9),
	}}
	r := NewResolver(index, &fakeEmbedder{}, &fakeTables{tables: []string{"factures"}}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "factures par année")
	require.NoError(t, err)

	var year *ColumnMapping
	for i := range mappings {
		if mappings[i].Concept == ConceptYear {
			year = &mappings[i]
		}
	}
	require.NotNil(t, year)
	assert.False(t, year.NeedsCast)
	assert.Equal(t, "annee", year.Expression)
}

func TestContextFilterPrefersUtteranceTable(t *testing.T) {
	index := &fakeIndex{matches: []semantic.Match{
		columnMatch("commandes", "montant", "VARCHAR", 0.95),
		columnMatch("factures", "montant_ht", "VARCHAR", 0.90),
	}}
	r := NewResolver(index, &fakeEmbedder{}, &fakeTables{tables: []string{"commandes", "factures"}}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "total des factures")
	require.NoError(t, err)
	require.NotEmpty(t, mappings)
	assert.Equal(t, "factures", mappings[0].Table)
	assert.Equal(t, "montant_ht", mappings[0].Column)
}

func TestNoMatchesSkipsConcept(t *testing.T) {
	r := NewResolver(&fakeIndex{}, &fakeEmbedder{}, &fakeTables{}, 5)

	mappings, err := r.ResolveConcepts(context.Background(), "montant total")
	require.NoError(t, err)
	assert.Empty(t, mappings)
}
