package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/datachat-ai/datachat/internal/errors"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/semantic"
)

// ColumnMapping is a resolved link from a user concept to a warehouse column
type ColumnMapping struct {
	Concept    string  `json:"concept"`
	Table      string  `json:"table"`
	Column     string  `json:"column"`
	DataType   string  `json:"data_type"`
	Confidence float64 `json:"confidence"`
	NeedsCast  bool    `json:"needs_cast"`
	Expression string  `json:"expression"` // SQL expression, cast applied when needed
}

// conceptPattern matches utterance text to an abstract concept
type conceptPattern struct {
	pattern *regexp.Regexp
	concept string
}

// Concept names produced by the resolver
const (
	ConceptAmount     = "amount"
	ConceptInvoice    = "invoice"
	ConceptOrder      = "order"
	ConceptPayment    = "payment"
	ConceptExpense    = "expense"
	ConceptSupplier   = "supplier"
	ConceptCustomer   = "customer"
	ConceptProject    = "project"
	ConceptTask       = "task"
	ConceptOperation  = "operation"
	ConceptYear       = "year"
	ConceptMonth      = "month"
	ConceptDate       = "date"
	ConceptIdentifier = "identifier"
)

// conceptPatterns covers French and English business vocabulary
var conceptPatterns = []conceptPattern{
	{regexp.MustCompile(`chiffre\s*d'?\s*affaire|\bca\b|montant|total|somme`), ConceptAmount},
	{regexp.MustCompile(`facture|invoice`), ConceptInvoice},
	{regexp.MustCompile(`commande|order`), ConceptOrder},
	{regexp.MustCompile(`règlement|reglement|paiement|payment`), ConceptPayment},
	{regexp.MustCompile(`dépense|depense|expense`), ConceptExpense},
	{regexp.MustCompile(`fournisseur|vendor|supplier`), ConceptSupplier},
	{regexp.MustCompile(`client|customer`), ConceptCustomer},
	{regexp.MustCompile(`projet|project`), ConceptProject},
	{regexp.MustCompile(`tâche|tache|task`), ConceptTask},
	{regexp.MustCompile(`opération|operation`), ConceptOperation},
	{regexp.MustCompile(`année|\ban\b|year`), ConceptYear},
	{regexp.MustCompile(`mois|month`), ConceptMonth},
	{regexp.MustCompile(`\bdate\b`), ConceptDate},
	{regexp.MustCompile(`numéro|numero|number|code`), ConceptIdentifier},
}

// searchPhrases are canonical embedding queries per concept; they match the
// vocabulary the schema documents are written in
var searchPhrases = map[string]string{
	ConceptAmount:     "montant valeur prix total EUR ligne",
	ConceptInvoice:    "facture numéro",
	ConceptOrder:      "commande numéro",
	ConceptPayment:    "règlement paiement montant",
	ConceptExpense:    "dépense montant coût",
	ConceptSupplier:   "fournisseur nom vendor",
	ConceptCustomer:   "client nom customer",
	ConceptProject:    "projet identifiant code ID",
	ConceptTask:       "tâche code identifiant ID",
	ConceptOperation:  "opération code identifiant",
	ConceptYear:       "date année",
	ConceptMonth:      "date mois",
	ConceptDate:       "date création",
	ConceptIdentifier: "numéro code identifiant",
}

// contextHints steer concept resolution toward the table the utterance is
// actually about: keyword in the utterance to a substring of the table name
var contextHints = map[string][]struct{ keyword, tableHint string }{
	ConceptAmount: {
		{"facture", "facture"}, {"invoice", "facture"},
		{"commande", "commande"}, {"order", "commande"},
		{"dépense", "depense"}, {"depense", "depense"},
		{"règlement", "reglement"}, {"reglement", "reglement"},
	},
	ConceptYear: {
		{"facture", "facture"},
		{"commande", "commande"},
	},
	ConceptSupplier: {
		{"", "commande"},
	},
}

// TableLister provides table names for context filtering
type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// Resolver maps user concepts to warehouse columns via semantic search
type Resolver struct {
	index  semantic.Index
	llm    llm.Client
	tables TableLister
	topK   int
	logger *observability.Logger
}

// NewResolver creates a concept resolver
func NewResolver(index semantic.Index, llmClient llm.Client, tables TableLister, topK int) *Resolver {
	if topK <= 0 {
		topK = 5
	}
	return &Resolver{
		index:  index,
		llm:    llmClient,
		tables: tables,
		topK:   topK,
		logger: observability.NewLogger("schema-resolver"),
	}
}

// ExtractConcepts returns the concepts present in an utterance, in pattern order
func ExtractConcepts(utterance string) []string {
	lower := strings.ToLower(utterance)
	var concepts []string
	for _, cp := range conceptPatterns {
		if cp.pattern.MatchString(lower) {
			concepts = append(concepts, cp.concept)
		}
	}
	return concepts
}

// ResolveConcepts extracts concepts from the utterance and maps each to its
// best matching column. Concepts with no plausible column are skipped.
func (r *Resolver) ResolveConcepts(ctx context.Context, utterance string) ([]ColumnMapping, error) {
	concepts := ExtractConcepts(utterance)
	if len(concepts) == 0 {
		return nil, nil
	}

	var mappings []ColumnMapping
	for _, concept := range concepts {
		mapping, err := r.resolveConcept(ctx, concept, utterance)
		if err != nil {
			return nil, err
		}
		if mapping != nil {
			mappings = append(mappings, *mapping)
		}
	}

	return mappings, nil
}

func (r *Resolver) resolveConcept(ctx context.Context, concept, utterance string) (*ColumnMapping, error) {
	phrase, ok := searchPhrases[concept]
	if !ok {
		phrase = concept
	}

	embedding, err := r.llm.Embed(ctx, phrase)
	if err != nil {
		return nil, errors.NewEmbeddingError(err)
	}

	matches, err := r.index.Search(ctx, embedding, semantic.KindColumn, r.topK)
	if err != nil {
		return nil, errors.NewSemanticIndexError(err, "search")
	}
	if len(matches) == 0 {
		return nil, nil
	}

	tableFilter, err := r.contextTableFilter(ctx, concept, utterance)
	if err != nil {
		return nil, err
	}
	if tableFilter != "" {
		filtered := matchesForTable(matches, tableFilter)
		if len(filtered) > 0 {
			matches = filtered
		}
	}

	best := pickBestMatch(concept, matches)
	mapping := buildMapping(concept, best)

	r.logger.Debug(ctx, "resolved concept to column", map[string]any{
		"concept":    concept,
		"table":      mapping.Table,
		"column":     mapping.Column,
		"confidence": mapping.Confidence,
	})

	return &mapping, nil
}

// contextTableFilter picks the table the utterance context points at
func (r *Resolver) contextTableFilter(ctx context.Context, concept, utterance string) (string, error) {
	hints, ok := contextHints[concept]
	if !ok {
		return "", nil
	}

	lower := strings.ToLower(utterance)
	var tableHint string
	for _, h := range hints {
		if h.keyword == "" || strings.Contains(lower, h.keyword) {
			tableHint = h.tableHint
			break
		}
	}
	if tableHint == "" {
		return "", nil
	}

	tables, err := r.tables.ListTables(ctx)
	if err != nil {
		return "", err
	}
	for _, table := range tables {
		if strings.Contains(strings.ToLower(table), tableHint) {
			return table, nil
		}
	}
	return "", nil
}

func matchesForTable(matches []semantic.Match, table string) []semantic.Match {
	var out []semantic.Match
	for _, m := range matches {
		if m.Table == table {
			out = append(out, m)
		}
	}
	return out
}

// pickBestMatch applies concept-specific tie breaking. Amount columns with
// an EUR suffix hold locale-converted duplicates that are often corrupted
// in source CSVs, so plain montant columns win over them.
func pickBestMatch(concept string, matches []semantic.Match) semantic.Match {
	best := matches[0]
	if concept != ConceptAmount {
		return best
	}

	for _, m := range matches {
		col := strings.ToLower(m.Column)
		if strings.Contains(col, "montant_ligne") && !strings.Contains(col, "eur") {
			return m
		}
	}
	for _, m := range matches {
		col := strings.ToLower(m.Column)
		if strings.Contains(col, "montant") && !strings.Contains(col, "eur") {
			best = m
		}
	}
	return best
}

// buildMapping attaches the SQL expression, casting where the raw column
// type cannot be used directly
func buildMapping(concept string, match semantic.Match) ColumnMapping {
	mapping := ColumnMapping{
		Concept:    concept,
		Table:      match.Table,
		Column:     match.Column,
		DataType:   strings.ToUpper(match.DataType),
		Confidence: match.Similarity,
		Expression: match.Column,
	}

	switch concept {
	case ConceptAmount:
		// French locale amounts arrive as text with comma decimal separators
		mapping.NeedsCast = true
		mapping.Expression = fmt.Sprintf("CAST(REPLACE(%s, ',', '.') AS DOUBLE)", match.Column)
	case ConceptYear:
		if strings.Contains(mapping.DataType, "DATE") || strings.Contains(mapping.DataType, "TIMESTAMP") {
			mapping.NeedsCast = true
			mapping.Expression = fmt.Sprintf("YEAR(%s)", match.Column)
		}
	}

	return mapping
}
