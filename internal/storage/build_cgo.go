//go:build sqlite_cgo && !purego

package storage

// This file is compiled when building with CGO and the sqlite_cgo tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
//
// The sqlite_fts5 tag is required: the sections_fts index is an FTS5 table.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// connectionString sets per-connection options through the DSN so every
// pooled connection enforces foreign keys.
func connectionString(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}
