//go:build !cgo

// This build selects the pure-Go modernc.org/sqlite driver so the engine
// still builds cgo-free, carrying both SQLite drivers in go.mod the way
// this storage layer is expected to.
package store

import (
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver name used to open connections.
const DriverName = "sqlite"
