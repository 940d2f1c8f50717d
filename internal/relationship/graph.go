package relationship

// Join describes one table joined into a query with its ON condition
type Join struct {
	Table       string // table being joined in
	LeftTable   string // already-joined table it connects to
	LeftColumn  string
	RightColumn string // column on the joined table
}

// PlanJoins orders the extra tables into joins reachable from the primary
// table, in one greedy pass over others in the order given. Each table must
// share a declared relationship with a table already in the join set; edges
// work in either direction. A table with no direct edge to the current join
// set is dropped, so multi-hop paths through undeclared intermediate tables
// are not discovered and the result depends on the order of others.
func (s *Store) PlanJoins(primary string, others []string) []Join {
	s.mu.RLock()
	rels := make([]Relationship, len(s.rels))
	copy(rels, s.rels)
	s.mu.RUnlock()

	joined := map[string]bool{primary: true}
	var joins []Join

	for _, candidate := range others {
		if joined[candidate] {
			continue
		}

		for _, rel := range rels {
			if rel.FromTable == candidate && joined[rel.ToTable] {
				joins = append(joins, Join{
					Table:       candidate,
					LeftTable:   rel.ToTable,
					LeftColumn:  rel.ToColumn,
					RightColumn: rel.FromColumn,
				})
				joined[candidate] = true
				break
			}
			if rel.ToTable == candidate && joined[rel.FromTable] {
				joins = append(joins, Join{
					Table:       candidate,
					LeftTable:   rel.FromTable,
					LeftColumn:  rel.FromColumn,
					RightColumn: rel.ToColumn,
				})
				joined[candidate] = true
				break
			}
		}
	}

	return joins
}
