// Schema migrations for the memory engine's SQLite store, grounded on a
// versioned-migration approach (schema_version table + idempotent ALTER
// TABLE / CREATE TABLE IF NOT EXISTS statements).
package store

import (
	"database/sql"
	"fmt"

	"github.com/memengine/memengine/internal/obslog"
)

// CurrentSchemaVersion is bumped whenever a new migration is appended.
//
// v1: memories, memory_edges, rules, code_entities, file_hashes,
//     memory_code_refs, schema_version.
const CurrentSchemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		content TEXT NOT NULL,
		rationale TEXT,
		context TEXT,
		tags_json TEXT NOT NULL DEFAULT '[]',
		keywords_json TEXT NOT NULL DEFAULT '[]',
		file_path TEXT,
		is_permanent INTEGER NOT NULL DEFAULT 0,
		is_pinned INTEGER NOT NULL DEFAULT 0,
		is_archived INTEGER NOT NULL DEFAULT 0,
		outcome TEXT,
		worked INTEGER,
		outcome_sealed_at DATETIME,
		access_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_file_path ON memories(file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(is_archived)`,

	`CREATE TABLE IF NOT EXISTS memory_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		relationship TEXT NOT NULL,
		description TEXT,
		confidence REAL NOT NULL DEFAULT 1.0,
		created_at DATETIME NOT NULL,
		UNIQUE(source_id, target_id, relationship)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON memory_edges(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_id)`,

	`CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger TEXT NOT NULL,
		keywords_json TEXT NOT NULL DEFAULT '[]',
		must_do_json TEXT NOT NULL DEFAULT '[]',
		must_not_json TEXT NOT NULL DEFAULT '[]',
		ask_first_json TEXT NOT NULL DEFAULT '[]',
		warnings_json TEXT NOT NULL DEFAULT '[]',
		priority INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS code_entities (
		id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		file_path TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		line_start INTEGER NOT NULL,
		line_end INTEGER NOT NULL,
		signature TEXT,
		docstring TEXT,
		language TEXT NOT NULL,
		imports_json TEXT NOT NULL DEFAULT '[]',
		inherits_json TEXT NOT NULL DEFAULT '[]',
		calls_json TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_project_file ON code_entities(project_path, file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_name ON code_entities(name)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_qname ON code_entities(qualified_name)`,

	`CREATE TABLE IF NOT EXISTS file_hashes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_path TEXT NOT NULL,
		file_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		indexed_at DATETIME NOT NULL,
		UNIQUE(project_path, file_path)
	)`,

	`CREATE TABLE IF NOT EXISTS memory_code_refs (
		memory_id INTEGER NOT NULL,
		entity_id TEXT NOT NULL,
		PRIMARY KEY (memory_id, entity_id)
	)`,

	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`,
}

// runMigrations applies the schema (idempotently) and records the current
// version.
func runMigrations(db *sql.DB) error {
	logger := obslog.Get(obslog.CategoryStore)
	timer := obslog.StartTimer(obslog.CategoryStore, "runMigrations")
	defer timer.Stop()

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: apply schema statement: %w", err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version WHERE version = ?`, CurrentSchemaVersion).Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version(version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("store: record schema_version: %w", err)
		}
		logger.Info("applied schema version %d", CurrentSchemaVersion)
	}
	return nil
}
