package store

import (
	"database/sql"
	"encoding/json"

	"github.com/memengine/memengine/internal/memerr"
)

// CodeEntityRow is the persisted representation of a code entity (§3 Data
// model). The id is caller-computed (content-hash derived, §4.H) so Upsert
// is a plain INSERT OR REPLACE.
type CodeEntityRow struct {
	ID            string
	ProjectPath   string
	FilePath      string
	QualifiedName string
	Name          string
	Kind          string
	LineStart     int
	LineEnd       int
	Signature     string
	Docstring     string
	Language      string
	Imports       []string
	Inherits      []string
	Calls         []string
}

// UpsertCodeEntity inserts or replaces a code entity row keyed by id.
func (s *Store) UpsertCodeEntity(e CodeEntityRow) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT OR REPLACE INTO code_entities
			(id, project_path, file_path, qualified_name, name, kind, line_start, line_end,
			 signature, docstring, language, imports_json, inherits_json, calls_json)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.ID, e.ProjectPath, e.FilePath, e.QualifiedName, e.Name, e.Kind, e.LineStart, e.LineEnd,
			e.Signature, e.Docstring, e.Language, mustJSON(e.Imports), mustJSON(e.Inherits), mustJSON(e.Calls))
		if err != nil {
			return memerr.Wrap(memerr.Internal, "store.UpsertCodeEntity", "upsert", err)
		}
		return nil
	})
}

// DeleteCodeEntity removes a single entity by id.
func (s *Store) DeleteCodeEntity(id string) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM code_entities WHERE id = ?`, id)
		return err
	})
}

// DeleteCodeEntitiesByIDs removes many entities by id in one statement.
func (s *Store) DeleteCodeEntitiesByIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withWrite(func(db *sql.DB) error {
		args := make([]interface{}, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		_, err := db.Exec(`DELETE FROM code_entities WHERE id IN (`+placeholders(len(ids))+`)`, args...)
		return err
	})
}

// EntitiesForFile returns all entities currently stored for (projectPath, filePath).
func (s *Store) EntitiesForFile(projectPath, filePath string) ([]CodeEntityRow, error) {
	var rows []CodeEntityRow
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT id, project_path, file_path, qualified_name, name, kind, line_start, line_end,
			signature, docstring, language, imports_json, inherits_json, calls_json
			FROM code_entities WHERE project_path = ? AND file_path = ?`, projectPath, filePath)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var e CodeEntityRow
			if err := scanCodeEntity(rs, &e); err != nil {
				return err
			}
			rows = append(rows, e)
		}
		return rs.Err()
	})
	return rows, err
}

// AllEntities returns every entity for a project, used by find_code,
// analyze_impact, and index_project's stale-file cleanup.
func (s *Store) AllEntities(projectPath string) ([]CodeEntityRow, error) {
	var rows []CodeEntityRow
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT id, project_path, file_path, qualified_name, name, kind, line_start, line_end,
			signature, docstring, language, imports_json, inherits_json, calls_json
			FROM code_entities WHERE project_path = ?`, projectPath)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var e CodeEntityRow
			if err := scanCodeEntity(rs, &e); err != nil {
				return err
			}
			rows = append(rows, e)
		}
		return rs.Err()
	})
	return rows, err
}

func scanCodeEntity(s rowScanner, e *CodeEntityRow) error {
	var importsJSON, inheritsJSON, callsJSON string
	var signature, docstring sql.NullString
	if err := s.Scan(&e.ID, &e.ProjectPath, &e.FilePath, &e.QualifiedName, &e.Name, &e.Kind, &e.LineStart, &e.LineEnd,
		&signature, &docstring, &e.Language, &importsJSON, &inheritsJSON, &callsJSON); err != nil {
		return err
	}
	e.Signature = signature.String
	e.Docstring = docstring.String
	_ = json.Unmarshal([]byte(importsJSON), &e.Imports)
	_ = json.Unmarshal([]byte(inheritsJSON), &e.Inherits)
	_ = json.Unmarshal([]byte(callsJSON), &e.Calls)
	return nil
}
