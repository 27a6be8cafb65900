// Command migrate applies PANfm's numbered, idempotent schema migrations
// (§6) against the configured TimescaleDB instance. Runner grounded on
// pressly/goose (present in the pack's dependency surface) driving the
// standard database/sql pgx adapter, with the migration files' own
// "-- +goose Up"/"-- +goose Down" markers (the same convention the pack's
// integration test harness parses by hand).
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/panfm/panfm/internal/store"
)

func main() {
	dsn := flag.String("database-url", os.Getenv("PANFM_DATABASE_URL"), "PostgreSQL/TimescaleDB connection string")
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: -database-url (or PANFM_DATABASE_URL) is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	goose.SetBaseFS(store.MigrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	switch *direction {
	case "up":
		err = goose.Up(db, "migrations")
	case "down":
		err = goose.Down(db, "migrations")
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown direction %q\n", *direction)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("migrate: %s complete\n", *direction)
}
