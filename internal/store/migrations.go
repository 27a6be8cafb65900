package store

import "embed"

// MigrationsFS embeds the numbered, idempotent schema migrations (§6) for
// cmd/migrate's goose runner to apply.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
