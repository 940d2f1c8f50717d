package relationship

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/datachat-ai/datachat/internal/errors"
)

// Relationship is a declared foreign-key style link between two tables
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

func (r Relationship) key() string {
	return strings.Join([]string{r.FromTable, r.FromColumn, r.ToTable, r.ToColumn}, "|")
}

// Store persists table relationships as a single JSON document on disk.
// The whole document is rewritten on every mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	rels []Relationship
}

// NewStore opens a relationship store backed by the given file.
// A missing file starts the store empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read relationship file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.rels); err != nil {
			return nil, fmt.Errorf("failed to parse relationship file: %w", err)
		}
	}

	return s, nil
}

// List returns a copy of all relationships
func (s *Store) List() []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Relationship, len(s.rels))
	copy(out, s.rels)
	return out
}

// Add appends a relationship, rejecting exact duplicates
func (s *Store) Add(rel Relationship) error {
	if rel.FromTable == "" || rel.FromColumn == "" || rel.ToTable == "" || rel.ToColumn == "" {
		return errors.NewInvalidInputError("relationship", "all four fields are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rels {
		if existing.key() == rel.key() {
			return errors.NewInvalidInputError("relationship", "already declared")
		}
	}

	s.rels = append(s.rels, rel)
	return s.saveLocked()
}

// Remove deletes a relationship matching all four fields.
// Returns false when no such relationship exists.
func (s *Store) Remove(rel Relationship) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.rels {
		if existing.key() == rel.key() {
			s.rels = append(s.rels[:i], s.rels[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// RemoveByTable deletes every relationship touching the given table,
// returning how many were removed
func (s *Store) RemoveByTable(table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rels[:0]
	removed := 0
	for _, rel := range s.rels {
		if rel.FromTable == table || rel.ToTable == table {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	s.rels = kept

	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

// Reset removes all relationships
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rels = nil
	return s.saveLocked()
}

// Describe renders the relationships as prompt-ready text
func (s *Store) Describe() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rels) == 0 {
		return "No table relationships declared."
	}

	var b strings.Builder
	b.WriteString("Table relationships:\n")
	for _, rel := range s.rels {
		fmt.Fprintf(&b, "  %s.%s = %s.%s\n", rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn)
	}
	return b.String()
}

func (s *Store) saveLocked() error {
	rels := s.rels
	if rels == nil {
		rels = []Relationship{}
	}

	data, err := json.MarshalIndent(rels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal relationships: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create relationship directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write relationship file: %w", err)
	}
	return nil
}
