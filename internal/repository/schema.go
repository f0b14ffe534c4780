// Package repository persists expenses, their bank links and feedback events
// in SQLite.
package repository

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations exposes the embedded schema migrations for the database
// migrator.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err) // embed layout is fixed at build time
	}
	return sub
}
