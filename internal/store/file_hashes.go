package store

import (
	"database/sql"
	"time"

	"github.com/memengine/memengine/internal/memerr"
)

// FileHashRow is the persisted representation of a file-hash record (§3
// Data model), one row per (project_path, relative_file_path).
type FileHashRow struct {
	ProjectPath string
	FilePath    string
	ContentHash string
	IndexedAt   time.Time
}

// GetFileHash returns the stored hash for (projectPath, filePath), or
// memerr.NotFound if never indexed.
func (s *Store) GetFileHash(projectPath, filePath string) (FileHashRow, error) {
	var h FileHashRow
	err := s.withRead(func(db *sql.DB) error {
		row := db.QueryRow(`SELECT project_path, file_path, content_hash, indexed_at
			FROM file_hashes WHERE project_path=? AND file_path=?`, projectPath, filePath)
		return row.Scan(&h.ProjectPath, &h.FilePath, &h.ContentHash, &h.IndexedAt)
	})
	if err != nil {
		return FileHashRow{}, wrapNotFound("store.GetFileHash", err)
	}
	return h, nil
}

// UpsertFileHash records (or updates) the content hash for a file.
func (s *Store) UpsertFileHash(h FileHashRow) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO file_hashes (project_path, file_path, content_hash, indexed_at)
			VALUES (?,?,?,?)
			ON CONFLICT(project_path, file_path) DO UPDATE SET content_hash=excluded.content_hash, indexed_at=excluded.indexed_at`,
			h.ProjectPath, h.FilePath, h.ContentHash, time.Now().UTC())
		if err != nil {
			return memerr.Wrap(memerr.Internal, "store.UpsertFileHash", "upsert", err)
		}
		return nil
	})
}

// DeleteFileHash removes the hash row for a file that no longer exists.
func (s *Store) DeleteFileHash(projectPath, filePath string) error {
	return s.withWrite(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM file_hashes WHERE project_path=? AND file_path=?`, projectPath, filePath)
		return err
	})
}

// AllFileHashes returns every tracked file path for a project, used to
// detect deletions during index_project.
func (s *Store) AllFileHashes(projectPath string) ([]FileHashRow, error) {
	var rows []FileHashRow
	err := s.withRead(func(db *sql.DB) error {
		rs, err := db.Query(`SELECT project_path, file_path, content_hash, indexed_at FROM file_hashes WHERE project_path=?`, projectPath)
		if err != nil {
			return err
		}
		defer rs.Close()
		for rs.Next() {
			var h FileHashRow
			if err := rs.Scan(&h.ProjectPath, &h.FilePath, &h.ContentHash, &h.IndexedAt); err != nil {
				return err
			}
			rows = append(rows, h)
		}
		return rs.Err()
	})
	return rows, err
}
