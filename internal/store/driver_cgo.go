//go:build cgo_sqlite

package store

// Built with the cgo_sqlite tag the document store uses the C SQLite
// amalgamation, which is faster for large bulk loads.
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver used for the document store.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
