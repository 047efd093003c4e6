//go:build cgo

// Package store persists the memory engine's tables to SQLite. This file
// selects the cgo-backed mattn/go-sqlite3 driver, the default build.
package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver name used to open connections.
const DriverName = "sqlite3"
