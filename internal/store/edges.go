package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/memengine/memengine/internal/memerr"
)

// EdgeRow is the persisted representation of an Edge (§3 Data model).
type EdgeRow struct {
	ID           int64
	SourceID     int64
	TargetID     int64
	Relationship string
	Description  string
	Confidence   float64
	CreatedAt    time.Time
}

// InsertEdge creates a new edge, enforcing no-self-edge and uniqueness of
// (source, target, relationship) via the schema's UNIQUE constraint.
func (s *Store) InsertEdge(e EdgeRow) (int64, error) {
	var id int64
	err := s.withWrite(func(db *sql.DB) error {
		var err error
		id, err = insertEdge(db, e)
		return err
	})
	return id, err
}

// InsertEdge is the Session-scoped counterpart of Store.InsertEdge, so a
// link can be created atomically alongside the rest of a composite mutation.
func (sess *Session) InsertEdge(e EdgeRow) (int64, error) {
	return insertEdge(sess, e)
}

func insertEdge(x execer, e EdgeRow) (int64, error) {
	if e.SourceID == e.TargetID {
		return 0, memerr.New(memerr.InvalidInput, "store.InsertEdge", "self-edges are not allowed")
	}

	now := time.Now().UTC()
	res, err := x.Exec(`INSERT INTO memory_edges (source_id, target_id, relationship, description, confidence, created_at)
		VALUES (?,?,?,?,?,?)`,
		e.SourceID, e.TargetID, e.Relationship, e.Description, e.Confidence, now)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, memerr.Wrap(memerr.Conflict, "store.InsertEdge", "edge already exists", err)
		}
		return 0, memerr.Wrap(memerr.Internal, "store.InsertEdge", "insert", err)
	}
	return res.LastInsertId()
}

// DeleteEdge removes a specific edge by its endpoints and relationship.
func (s *Store) DeleteEdge(sourceID, targetID int64, relationship string) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM memory_edges WHERE source_id=? AND target_id=? AND relationship=?`,
			sourceID, targetID, relationship)
		return err
	})
}

// EdgesFrom returns all edges whose source is id, optionally filtered by
// relationship types (empty = all).
func (s *Store) EdgesFrom(id int64, relationships []string) ([]EdgeRow, error) {
	return s.queryEdges(`source_id = ?`, id, relationships)
}

// EdgesTo returns all edges whose target is id, optionally filtered by
// relationship types.
func (s *Store) EdgesTo(id int64, relationships []string) ([]EdgeRow, error) {
	return s.queryEdges(`target_id = ?`, id, relationships)
}

// EdgesFromOrTo returns all edges touching id in either direction.
func (s *Store) EdgesFromOrTo(id int64, relationships []string) ([]EdgeRow, error) {
	return s.queryEdges(`(source_id = ? OR target_id = ?)`, id, relationships, id)
}

func (s *Store) queryEdges(whereClause string, id int64, relationships []string, extraArgs ...interface{}) ([]EdgeRow, error) {
	var rows []EdgeRow
	err := s.withRead(func(db *sql.DB) error {
		query := `SELECT id, source_id, target_id, relationship, description, confidence, created_at
			FROM memory_edges WHERE ` + whereClause
		args := append([]interface{}{id}, extraArgs...)
		if len(relationships) > 0 {
			query += ` AND relationship IN (` + placeholders(len(relationships)) + `)`
			for _, r := range relationships {
				args = append(args, r)
			}
		}
		rs, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var e EdgeRow
			var desc sql.NullString
			if err := rs.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &desc, &e.Confidence, &e.CreatedAt); err != nil {
				return err
			}
			e.Description = desc.String
			rows = append(rows, e)
		}
		return rs.Err()
	})
	return rows, err
}

// AllEdges returns every edge, used by graph export and migration of
// incoming edges during duplicate cleanup.
func (s *Store) AllEdges() ([]EdgeRow, error) {
	var rows []EdgeRow
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT id, source_id, target_id, relationship, description, confidence, created_at FROM memory_edges`)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var e EdgeRow
			var desc sql.NullString
			if err := rs.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &desc, &e.Confidence, &e.CreatedAt); err != nil {
				return err
			}
			e.Description = desc.String
			rows = append(rows, e)
		}
		return rs.Err()
	})
	return rows, err
}

// RetargetEdges repoints every edge's source_id (and target_id) from oldID
// to newID, used by cleanup_duplicates to migrate incoming edges to the
// surviving memory.
func (s *Store) RetargetEdges(oldID, newID int64) error {
	return s.withWrite(func(db *sql.DB) error {
		return retargetEdges(db, oldID, newID)
	})
}

// RetargetEdges is the Session-scoped counterpart of Store.RetargetEdges.
func (sess *Session) RetargetEdges(oldID, newID int64) error {
	return retargetEdges(sess, oldID, newID)
}

func retargetEdges(x execer, oldID, newID int64) error {
	if _, err := x.Exec(`UPDATE OR IGNORE memory_edges SET source_id=? WHERE source_id=?`, newID, oldID); err != nil {
		return err
	}
	if _, err := x.Exec(`UPDATE OR IGNORE memory_edges SET target_id=? WHERE target_id=?`, newID, oldID); err != nil {
		return err
	}
	// Drop any now-self-referencing rows the retarget produced. Rows that
	// UPDATE OR IGNORE skipped (they would duplicate an existing edge) keep
	// the old id.
	_, err := x.Exec(`DELETE FROM memory_edges WHERE source_id = target_id`)
	return err
}

func isUniqueConstraintErr(err error) bool {
	// Both mattn/go-sqlite3 and modernc.org/sqlite surface SQLite's
	// "UNIQUE constraint failed" text verbatim; matching on substring keeps
	// this driver-agnostic without importing either driver's error type.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
