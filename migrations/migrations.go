package migrations

import "embed"

// FS holds the goose SQL migrations applied at startup and in integration tests
//
//go:embed *.sql
var FS embed.FS
