package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/memengine/memengine/internal/memerr"
)

// RuleRow is the persisted representation of a Rule (§3 Data model).
type RuleRow struct {
	ID        int64
	Trigger   string
	Keywords  []string
	MustDo    []string
	MustNot   []string
	AskFirst  []string
	Warnings  []string
	Priority  int
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertRule creates a new rule and returns its id.
func (s *Store) InsertRule(r RuleRow) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.withWrite(func(db *sql.DB) error {
		res, err := db.Exec(`INSERT INTO rules
			(trigger, keywords_json, must_do_json, must_not_json, ask_first_json, warnings_json, priority, enabled, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			r.Trigger, mustJSON(r.Keywords), mustJSON(r.MustDo), mustJSON(r.MustNot), mustJSON(r.AskFirst), mustJSON(r.Warnings),
			r.Priority, boolToInt(r.Enabled), now, now)
		if err != nil {
			return memerr.Wrap(memerr.Internal, "store.InsertRule", "insert", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// UpdateRule overwrites all mutable fields of an existing rule.
func (s *Store) UpdateRule(r RuleRow) error {
	now := time.Now().UTC()
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE rules SET trigger=?, keywords_json=?, must_do_json=?, must_not_json=?,
			ask_first_json=?, warnings_json=?, priority=?, enabled=?, updated_at=? WHERE id=?`,
			r.Trigger, mustJSON(r.Keywords), mustJSON(r.MustDo), mustJSON(r.MustNot), mustJSON(r.AskFirst), mustJSON(r.Warnings),
			r.Priority, boolToInt(r.Enabled), now, r.ID)
		return err
	})
}

// GetRule loads a single rule by id.
func (s *Store) GetRule(id int64) (RuleRow, error) {
	var r RuleRow
	err := s.withRead(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT id, trigger, keywords_json, must_do_json, must_not_json, ask_first_json,
			warnings_json, priority, enabled, created_at, updated_at FROM rules WHERE id=?`, id)
		return scanRule(row, &r)
	})
	if err != nil {
		return RuleRow{}, wrapNotFound("store.GetRule", err)
	}
	return r, nil
}

// ListRules returns every rule, enabled or not; callers filter as needed.
func (s *Store) ListRules() ([]RuleRow, error) {
	var rows []RuleRow
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT id, trigger, keywords_json, must_do_json, must_not_json, ask_first_json,
			warnings_json, priority, enabled, created_at, updated_at FROM rules ORDER BY priority DESC`)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var r RuleRow
			if err := scanRule(rs, &r); err != nil {
				return err
			}
			rows = append(rows, r)
		}
		return rs.Err()
	})
	return rows, err
}

func scanRule(s rowScanner, r *RuleRow) error {
	var keywordsJSON, mustDoJSON, mustNotJSON, askFirstJSON, warningsJSON string
	if err := s.Scan(&r.ID, &r.Trigger, &keywordsJSON, &mustDoJSON, &mustNotJSON, &askFirstJSON,
		&warningsJSON, &r.Priority, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return err
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &r.Keywords)
	_ = json.Unmarshal([]byte(mustDoJSON), &r.MustDo)
	_ = json.Unmarshal([]byte(mustNotJSON), &r.MustNot)
	_ = json.Unmarshal([]byte(askFirstJSON), &r.AskFirst)
	_ = json.Unmarshal([]byte(warningsJSON), &r.Warnings)
	return nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
