package migrations

import "embed"

// Files exposes every SQL migration applied at startup.
//
//go:embed *.sql
var Files embed.FS
