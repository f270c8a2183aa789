//go:build purego || !sqlite_cgo

package storage

// This file is compiled by default, or with the purego tag.
// It uses a pure Go SQLite implementation that ships with FTS5.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// connectionString sets per-connection options through the DSN so every
// pooled connection enforces foreign keys.
func connectionString(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
