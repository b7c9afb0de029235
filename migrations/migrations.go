package migrations

import "embed"

//go:embed sqlite3/*.sql
var FS embed.FS
