package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/obslog"
)

// MemoryRow is the persisted representation of a Memory (§3 Data model).
// Higher-level packages (internal/memory) wrap this in a richer domain type.
type MemoryRow struct {
	ID              int64
	Category        string
	Content         string
	Rationale       string
	Context         string
	Tags            []string
	Keywords        []string
	FilePath        string
	IsPermanent     bool
	IsPinned        bool
	IsArchived      bool
	Outcome         string
	Worked          *bool
	OutcomeSealedAt *time.Time
	AccessCount     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsertMemory creates a new memory row and returns its id.
func (s *Store) InsertMemory(m MemoryRow) (int64, error) {
	timer := obslog.StartTimer(obslog.CategoryStore, "InsertMemory")
	defer timer.Stop()

	tagsJSON, _ := json.Marshal(m.Tags)
	keywordsJSON, _ := json.Marshal(m.Keywords)
	now := time.Now().UTC()

	var id int64
	err := s.withWrite(func(db *sql.DB) error {
		res, err := db.Exec(`INSERT INTO memories
			(category, content, rationale, context, tags_json, keywords_json, file_path,
			 is_permanent, is_pinned, is_archived, outcome, worked, outcome_sealed_at,
			 access_count, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			m.Category, m.Content, m.Rationale, m.Context, string(tagsJSON), string(keywordsJSON), m.FilePath,
			boolToInt(m.IsPermanent), boolToInt(m.IsPinned), boolToInt(m.IsArchived),
			m.Outcome, nullableBool(m.Worked), nullableTime(m.OutcomeSealedAt),
			m.AccessCount, now, now,
		)
		if err != nil {
			return memerr.Wrap(memerr.Internal, "store.InsertMemory", "insert", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetMemory loads a single memory by id.
func (s *Store) GetMemory(id int64) (MemoryRow, error) {
	var m MemoryRow
	err := s.withRead(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT id, category, content, rationale, context, tags_json, keywords_json,
			file_path, is_permanent, is_pinned, is_archived, outcome, worked, outcome_sealed_at,
			access_count, created_at, updated_at FROM memories WHERE id = ?`, id)
		return scanMemoryRow(row, &m)
	})
	if err != nil {
		return MemoryRow{}, wrapNotFound("store.GetMemory", err)
	}
	return m, nil
}

// UpdateMemory overwrites all mutable fields of an existing memory.
func (s *Store) UpdateMemory(m MemoryRow) error {
	return s.withWrite(func(db *sql.DB) error {
		return updateMemory(db, m)
	})
}

// UpdateMemory is the Session-scoped counterpart of Store.UpdateMemory,
// for use inside an Atomic callback alongside other writes that must
// commit together.
func (sess *Session) UpdateMemory(m MemoryRow) error {
	return updateMemory(sess, m)
}

func updateMemory(x execer, m MemoryRow) error {
	tagsJSON, _ := json.Marshal(m.Tags)
	keywordsJSON, _ := json.Marshal(m.Keywords)
	now := time.Now().UTC()

	_, err := x.Exec(`UPDATE memories SET category=?, content=?, rationale=?, context=?,
		tags_json=?, keywords_json=?, file_path=?, is_permanent=?, is_pinned=?, is_archived=?,
		outcome=?, worked=?, outcome_sealed_at=?, access_count=?, updated_at=?
		WHERE id=?`,
		m.Category, m.Content, m.Rationale, m.Context, string(tagsJSON), string(keywordsJSON), m.FilePath,
		boolToInt(m.IsPermanent), boolToInt(m.IsPinned), boolToInt(m.IsArchived),
		m.Outcome, nullableBool(m.Worked), nullableTime(m.OutcomeSealedAt),
		m.AccessCount, now, m.ID,
	)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "store.UpdateMemory", "update", err)
	}
	return nil
}

// TouchMemoryAccess increments access_count for id, used on every recall hit.
func (s *Store) TouchMemoryAccess(id int64) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE memories SET access_count = access_count + 1 WHERE id = ?`, id)
		return err
	})
}

// DeleteMemory removes a memory row outright (used by compaction/pruning
// after archival bookkeeping is already done by the caller).
func (s *Store) DeleteMemory(id int64) error {
	return s.withWrite(func(db *sql.DB) error {
		return deleteMemory(db, id)
	})
}

// DeleteMemory is the Session-scoped counterpart of Store.DeleteMemory.
func (sess *Session) DeleteMemory(id int64) error {
	return deleteMemory(sess, id)
}

func deleteMemory(x execer, id int64) error {
	_, err := x.Exec(`DELETE FROM memories WHERE id = ?`, id)
	return err
}

// ListMemories returns all memories matching the given category filter
// (empty = all), optionally including archived ones.
func (s *Store) ListMemories(categories []string, includeArchived bool) ([]MemoryRow, error) {
	var rows []MemoryRow
	err := s.withRead(func(db *sql.DB) error {
		query := `SELECT id, category, content, rationale, context, tags_json, keywords_json,
			file_path, is_permanent, is_pinned, is_archived, outcome, worked, outcome_sealed_at,
			access_count, created_at, updated_at FROM memories WHERE 1=1`
		var args []interface{}
		if !includeArchived {
			query += ` AND is_archived = 0`
		}
		if len(categories) > 0 {
			query += ` AND category IN (` + placeholders(len(categories)) + `)`
			for _, c := range categories {
				args = append(args, c)
			}
		}
		rs, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var m MemoryRow
			if err := scanMemoryRows(rs, &m); err != nil {
				return err
			}
			rows = append(rows, m)
		}
		return rs.Err()
	})
	return rows, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryRow(row *sql.Row, m *MemoryRow) error {
	return scanMemoryGeneric(row, m)
}

func scanMemoryRows(rows *sql.Rows, m *MemoryRow) error {
	return scanMemoryGeneric(rows, m)
}

func scanMemoryGeneric(s rowScanner, m *MemoryRow) error {
	var tagsJSON, keywordsJSON string
	var worked sql.NullBool
	var sealedAt sql.NullTime
	var rationale, context, filePath, outcome sql.NullString

	if err := s.Scan(&m.ID, &m.Category, &m.Content, &rationale, &context, &tagsJSON, &keywordsJSON,
		&filePath, &m.IsPermanent, &m.IsPinned, &m.IsArchived, &outcome, &worked, &sealedAt,
		&m.AccessCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return err
	}

	m.Rationale = rationale.String
	m.Context = context.String
	m.FilePath = filePath.String
	m.Outcome = outcome.String
	if worked.Valid {
		v := worked.Bool
		m.Worked = &v
	}
	if sealedAt.Valid {
		t := sealedAt.Time
		m.OutcomeSealedAt = &t
	}
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(keywordsJSON), &m.Keywords)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
