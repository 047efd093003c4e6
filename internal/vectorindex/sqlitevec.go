//go:build sqlite_vec && cgo

// This file registers the sqlite-vec extension with the SQLite driver in
// builds tagged sqlite_vec with cgo. Index in index.go does not use it:
// vector search stays the in-memory brute-force cosine scan. Grounded on an
// extension-registration pattern that does the same for the mattn/go-sqlite3
// driver.
package vectorindex

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	vec.Auto()
}
