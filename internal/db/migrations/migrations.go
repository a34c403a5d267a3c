package migrations

import "embed"

// FS holds the versioned schema files applied by db.Migrate.
//
//go:embed *.sql
var FS embed.FS
