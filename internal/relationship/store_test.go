package relationship

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "relationships.json"))
	require.NoError(t, err)
	return s
}

func TestAddAndList(t *testing.T) {
	s := newTestStore(t)

	rel := Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}
	require.NoError(t, s.Add(rel))

	rels := s.List()
	require.Len(t, rels, 1)
	assert.Equal(t, rel, rels[0])
}

func TestAddRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)

	rel := Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}
	require.NoError(t, s.Add(rel))
	assert.Error(t, s.Add(rel))

	// Same tables but a different column pair is a distinct relationship
	other := rel
	other.FromColumn = "billing_client_id"
	assert.NoError(t, s.Add(other))
}

func TestAddRejectsIncomplete(t *testing.T) {
	s := newTestStore(t)

	err := s.Add(Relationship{FromTable: "factures", ToTable: "clients"})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)

	rel := Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}
	require.NoError(t, s.Add(rel))

	removed, err := s.Remove(rel)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, s.List())

	removed, err = s.Remove(rel)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveByTable(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Add(Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}))
	require.NoError(t, s.Add(Relationship{FromTable: "paiements", FromColumn: "facture_id", ToTable: "factures", ToColumn: "id"}))
	require.NoError(t, s.Add(Relationship{FromTable: "paiements", FromColumn: "compte_id", ToTable: "comptes", ToColumn: "id"}))

	removed, err := s.RemoveByTable("factures")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Len(t, s.List(), 1)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Add(Relationship{FromTable: "a", FromColumn: "x", ToTable: "b", ToColumn: "y"}))
	require.NoError(t, s.Reset())
	assert.Empty(t, s.List())
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relationships.json")

	s1, err := NewStore(path)
	require.NoError(t, err)
	rel := Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}
	require.NoError(t, s1.Add(rel))

	s2, err := NewStore(path)
	require.NoError(t, err)
	rels := s2.List()
	require.Len(t, rels, 1)
	assert.Equal(t, rel, rels[0])
}

func TestDescribe(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, "No table relationships declared.", s.Describe())

	require.NoError(t, s.Add(Relationship{FromTable: "factures", FromColumn: "client_id", ToTable: "clients", ToColumn: "id"}))
	desc := s.Describe()
	assert.Contains(t, desc, "factures.client_id = clients.id")
}
