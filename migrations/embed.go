// Package migrations embeds the schema and seed files applied by
// internal/migrate.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql seeds/*.sql
var files embed.FS

// Schema returns the migration files.
func Schema() fs.FS {
	sub, _ := fs.Sub(files, "sql")
	return sub
}

// Seeds returns the seed files.
func Seeds() fs.FS {
	sub, _ := fs.Sub(files, "seeds")
	return sub
}
