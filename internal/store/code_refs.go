package store

import "database/sql"

// LinkMemoryToCode records that a memory references a known code entity
// (MemoryCodeRef, §3 Data model).
func (s *Store) LinkMemoryToCode(memoryID int64, entityID string) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT OR IGNORE INTO memory_code_refs (memory_id, entity_id) VALUES (?, ?)`, memoryID, entityID)
		return err
	})
}

// CodeRefsForMemory returns entity ids referenced by a memory.
func (s *Store) CodeRefsForMemory(memoryID int64) ([]string, error) {
	var ids []string
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT entity_id FROM memory_code_refs WHERE memory_id = ?`, memoryID)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var id string
			if err := rs.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rs.Err()
	})
	return ids, err
}
