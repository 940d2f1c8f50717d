package relationship

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithRels(t *testing.T, rels ...Relationship) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "relationships.json"))
	require.NoError(t, err)
	for _, rel := range rels {
		require.NoError(t, s.Add(rel))
	}
	return s
}

func TestPlanJoinsDirectEdge(t *testing.T) {
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
	)

	joins := s.PlanJoins("factures", []string{"clients"})
	require.Len(t, joins, 1)
	assert.Equal(t, "clients", joins[0].Table)
	assert.Equal(t, "factures", joins[0].LeftTable)
	assert.Equal(t, "client_id", joins[0].LeftColumn)
	assert.Equal(t, "id", joins[0].RightColumn)
}

func TestPlanJoinsReverseEdge(t *testing.T) {
	// Edge declared clients <- factures but primary is clients
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
	)

	joins := s.PlanJoins("clients", []string{"factures"})
	require.Len(t, joins, 1)
	assert.Equal(t, "factures", joins[0].Table)
	assert.Equal(t, "clients", joins[0].LeftTable)
	assert.Equal(t, "id", joins[0].LeftColumn)
	assert.Equal(t, "client_id", joins[0].RightColumn)
}

func TestPlanJoinsChain(t *testing.T) {
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
		Relationship{FromTable: "paiements", FromColumn: "facture_id", ToTable: "factures", ToColumn: "id"},
	)

	joins := s.PlanJoins("clients", []string{"factures", "paiements"})
	require.Len(t, joins, 2)

	// factures attaches to clients first, then paiements through factures
	assert.Equal(t, "factures", joins[0].Table)
	assert.Equal(t, "paiements", joins[1].Table)
	assert.Equal(t, "factures", joins[1].LeftTable)
}

func TestPlanJoinsSinglePassIsOrderSensitive(t *testing.T) {
	// paiements is considered before factures has joined, so its only edge
	// does not reach the join set yet and it is dropped
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
		Relationship{FromTable: "paiements", FromColumn: "facture_id", ToTable: "factures", ToColumn: "id"},
	)

	joins := s.PlanJoins("clients", []string{"paiements", "factures"})
	require.Len(t, joins, 1)
	assert.Equal(t, "factures", joins[0].Table)
}

func TestPlanJoinsDropsUnreachableTable(t *testing.T) {
	// clients-factures-paiements chain, but factures is not requested so
	// paiements has no direct edge into the join set and is dropped
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
		Relationship{FromTable: "paiements", FromColumn: "facture_id", ToTable: "factures", ToColumn: "id"},
	)

	joins := s.PlanJoins("clients", []string{"paiements"})
	assert.Empty(t, joins)
}

func TestPlanJoinsNoRelationships(t *testing.T) {
	s := storeWithRels(t)

	joins := s.PlanJoins("factures", []string{"clients"})
	assert.Empty(t, joins)
}

func TestPlanJoinsIgnoresPrimaryInOthers(t *testing.T) {
	s := storeWithRels(t,
		Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"},
	)

	joins := s.PlanJoins("factures", []string{"factures", "clients"})
	require.Len(t, joins, 1)
	assert.Equal(t, "clients", joins[0].Table)
}
