package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/memengine/memengine/internal/memerr"
	"github.com/memengine/memengine/internal/obslog"
)

// Store is the transactional persistence layer for one project partition
// (or the distinguished global partition). It owns a single *sql.DB in WAL
// mode: one persistence handle per project.
//
// Modeled on a local-store pattern: a mutex guarding the handle,
// category-scoped logging around every operation, and directory creation
// on open.
type Store struct {
	mu          sync.RWMutex
	db          *sql.DB
	path        string
	projectPath string
}

// Open creates (if needed) the parent directory and opens/migrates the
// SQLite database at path. projectPath scopes code_entities/file_hashes
// rows written through this handle.
func Open(path, projectPath string) (*Store, error) {
	timer := obslog.StartTimer(obslog.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.Internal, "store.Open", "create storage directory", err)
	}

	db, err := sql.Open(DriverName, path+"?_journal_mode=WAL")
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "store.Open", "open database", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single-writer; serializes writes at the handle

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.Internal, "store.Open", "enable WAL", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.Internal, "store.Open", "enable foreign keys", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	obslog.Get(obslog.CategoryStore).Info("opened store at %s (project=%s)", path, projectPath)

	return &Store{db: db, path: path, projectPath: projectPath}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ProjectPath returns the project partition this store scopes code entities
// and file hashes to.
func (s *Store) ProjectPath() string { return s.projectPath }

// execer is the subset of *sql.DB's and *Session's methods that the row
// helpers in memories.go/edges.go need. Writing those helpers against this
// interface instead of *sql.DB directly lets the same SQL run either
// unwrapped (through Store's withRead/withWrite) or inside a Session's
// transaction, so composite operations can commit atomically.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Session is a scoped unit-of-work abstraction over the store: a set of
// operations that commit atomically as one SQL transaction. It exists so
// multi-statement composite mutations (compact, cleanup_duplicates) don't
// leave the store partially applied if a later statement fails.
type Session struct {
	tx  *sql.Tx
	ctx context.Context
}

// Begin starts a write session (a SQL transaction). Callers must call
// Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, memerr.Wrap(memerr.Internal, "store.Begin", "begin transaction", err)
	}
	return &Session{tx: tx, ctx: ctx}, nil
}

// Atomic runs fn inside a Session, committing if fn returns nil and rolling
// back otherwise (including on panic, which is re-raised after rollback).
func (s *Store) Atomic(ctx context.Context, fn func(*Session) error) error {
	sess, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			sess.Rollback()
			panic(r)
		}
	}()
	if err := fn(sess); err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			obslog.Get(obslog.CategoryStore).Warn("store.Atomic: rollback after %v failed: %v", err, rbErr)
		}
		return err
	}
	if err := sess.Commit(); err != nil {
		return memerr.Wrap(memerr.Internal, "store.Atomic", "commit", err)
	}
	return nil
}

// Commit commits the session's transaction.
func (sess *Session) Commit() error { return sess.tx.Commit() }

// Rollback aborts the session's transaction. Safe to call after Commit (no-op).
func (sess *Session) Rollback() error { return sess.tx.Rollback() }

// Exec runs a statement within the session.
func (sess *Session) Exec(query string, args ...interface{}) (sql.Result, error) {
	return sess.tx.ExecContext(sess.ctx, query, args...)
}

// Query runs a query within the session.
func (sess *Session) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return sess.tx.QueryContext(sess.ctx, query, args...)
}

// QueryRow runs a single-row query within the session.
func (sess *Session) QueryRow(query string, args ...interface{}) *sql.Row {
	return sess.tx.QueryRowContext(sess.ctx, query, args...)
}

// withRead runs fn holding the store's read lock, for direct (non-tx) reads
// against s.db. Used by read-only operations that don't need a Session.
func (s *Store) withRead(fn func(*sql.DB) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.db)
}

// withWrite runs fn holding the store's write lock, for direct (non-tx)
// writes against s.db.
func (s *Store) withWrite(fn func(*sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db)
}

// DB exposes the underlying handle for packages in this module that need
// raw access (e.g. building prepared read queries). External callers should
// prefer the typed methods in memories.go / edges.go / etc.
func (s *Store) DB() *sql.DB {
	return s.db
}

func wrapNotFound(op string, err error) error {
	if err == sql.ErrNoRows {
		return memerr.New(memerr.NotFound, op, "not found")
	}
	return memerr.Wrap(memerr.Internal, op, "query failed", err)
}
