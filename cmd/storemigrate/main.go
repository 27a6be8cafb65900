// Command storemigrate replays a retired deployment's alert_history export
// into the current TimescaleDB schema, skipping rows whose alert config or
// device no longer exists instead of aborting the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/panfm/panfm/internal/logging"
	"github.com/panfm/panfm/internal/storemigrate"
)

func main() {
	dsn := flag.String("database-url", os.Getenv("PANFM_DATABASE_URL"), "PostgreSQL/TimescaleDB connection string")
	exportPath := flag.String("legacy-export", "", "path to a JSON export of the retired alert_history table")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "storemigrate: -database-url (or PANFM_DATABASE_URL) is required")
		os.Exit(1)
	}
	if *exportPath == "" {
		fmt.Fprintln(os.Stderr, "storemigrate: -legacy-export is required")
		os.Exit(1)
	}

	logger := logging.New("info", os.Stdout)

	f, err := os.Open(*exportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storemigrate: opening export: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records, err := storemigrate.LoadLegacyExport(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storemigrate: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(ctx, *dsn)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storemigrate: connecting: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	res, err := storemigrate.MigrateAlertHistory(context.Background(), pool, records, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storemigrate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("storemigrate: migrated %d rows, skipped %d orphaned rows\n", res.Migrated, res.Skipped)
}
