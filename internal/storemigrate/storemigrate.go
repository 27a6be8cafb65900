// Package storemigrate carries forward alert-history rows from a retired
// storage generation into the current alert_history hypertable. It is
// grounded on the prior generation's migrate_alerts_to_timescale step: read
// every row, insert it, and skip (rather than abort) rows whose
// alert_config_id no longer exists, since alert configs can be deleted
// after the history referencing them was written.
package storemigrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// foreignKeyViolation is Postgres's SQLSTATE for a foreign-key constraint
// failure (here, alert_config_id or device_id no longer present).
const foreignKeyViolation = "23503"

// LegacyAlertHistoryRecord is one row as exported from the retired store.
// Field names mirror the legacy schema's columns so a straight JSON export
// of that table decodes here unchanged.
type LegacyAlertHistoryRecord struct {
	AlertConfigID  string     `json:"alert_config_id"`
	DeviceID       string     `json:"device_id"`
	ActualValue    float64    `json:"actual_value"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedReason *string    `json:"resolved_reason,omitempty"`
}

// LoadLegacyExport decodes a JSON array of LegacyAlertHistoryRecord, the
// format produced by dumping the retired store's alert_history table.
func LoadLegacyExport(r io.Reader) ([]LegacyAlertHistoryRecord, error) {
	var records []LegacyAlertHistoryRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("storemigrate: decoding legacy export: %w", err)
	}
	return records, nil
}

// Result summarizes one migration run.
type Result struct {
	Migrated int
	Skipped  int
}

// MigrateAlertHistory inserts every record into alert_history, skipping (and
// counting) rows that violate the config_id/device_id foreign keys instead
// of aborting the run, matching the retired Python migration's behavior for
// orphaned history rows.
func MigrateAlertHistory(ctx context.Context, pool *pgxpool.Pool, records []LegacyAlertHistoryRecord, log zerolog.Logger) (Result, error) {
	var res Result
	for _, rec := range records {
		_, err := pool.Exec(ctx, `
			INSERT INTO alert_history
				(triggered_at, config_id, device_id, actual_value, severity, message,
				 acknowledged_at, acknowledged_by, resolved_at, resolved_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (triggered_at, id) DO NOTHING
		`, rec.TriggeredAt, rec.AlertConfigID, rec.DeviceID, rec.ActualValue, rec.Severity, rec.Message,
			rec.AcknowledgedAt, rec.AcknowledgedBy, rec.ResolvedAt, rec.ResolvedReason)
		if err != nil {
			if isForeignKeyViolation(err) {
				res.Skipped++
				log.Warn().
					Str("alert_config_id", rec.AlertConfigID).
					Str("device_id", rec.DeviceID).
					Time("triggered_at", rec.TriggeredAt).
					Msg("skipping orphaned alert history row")
				continue
			}
			return res, fmt.Errorf("storemigrate: inserting alert history row triggered_at=%s: %w", rec.TriggeredAt, err)
		}
		res.Migrated++
	}
	return res, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == foreignKeyViolation
	}
	return false
}
