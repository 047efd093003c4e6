package store

import "database/sql"

// Snapshot is the full, store-agnostic contents of a project partition,
// used by the engine's export_data/import_data operations (§8 round-trip
// law: export then import(merge=false) into a fresh store reproduces an
// isomorphic store).
type Snapshot struct {
	Memories []MemoryRow
	Edges    []EdgeRow
	Rules    []RuleRow
}

// Export reads every memory, edge, and rule out of the store.
func (s *Store) Export() (Snapshot, error) {
	memories, err := s.ListMemories(nil, true)
	if err != nil {
		return Snapshot{}, err
	}
	edges, err := s.AllEdges()
	if err != nil {
		return Snapshot{}, err
	}
	rules, err := s.ListRules()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Memories: memories, Edges: edges, Rules: rules}, nil
}

// Import writes a Snapshot into the store. When merge is false the store is
// wiped first (fresh-store semantics); when true, rows are appended/upserted
// alongside whatever already exists. Memory ids are reassigned on import (the
// source ids are not guaranteed to be free), so edges are remapped through
// the old->new id mapping built while inserting memories.
func (s *Store) Import(snap Snapshot, merge bool) error {
	if !merge {
		if err := s.wipe(); err != nil {
			return err
		}
	}

	idMap := make(map[int64]int64, len(snap.Memories))
	for _, m := range snap.Memories {
		oldID := m.ID
		m.ID = 0
		newID, err := s.InsertMemory(m)
		if err != nil {
			return err
		}
		idMap[oldID] = newID
	}

	for _, e := range snap.Edges {
		src, ok1 := idMap[e.SourceID]
		dst, ok2 := idMap[e.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		e.SourceID, e.TargetID = src, dst
		if _, err := s.InsertEdge(e); err != nil {
			return err
		}
	}

	for _, r := range snap.Rules {
		r.ID = 0
		if _, err := s.InsertRule(r); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) wipe() error {
	return s.withWrite(func(db *sql.DB) error {
		for _, table := range []string{"memory_code_refs", "memory_edges", "memories", "rules"} {
			if _, err := db.Exec(`DELETE FROM ` + table); err != nil {
				return err
			}
		}
		return nil
	})
}
