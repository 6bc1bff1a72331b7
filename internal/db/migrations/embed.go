package migrations

import "embed"

// Files contains all SQL schema files in ascending order by filename.
//
//go:embed *.sql
var Files embed.FS
