package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/panfm/panfm/internal/model"
)

// ListAlertConfigs returns every configured alert rule.
func (s *Store) ListAlertConfigs(ctx context.Context) ([]model.AlertConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, device_id, metric_type, threshold_value, operator, severity, enabled, notification_channels, created_at, updated_at
		FROM alert_config
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list alert configs: %w", err)
	}
	defer rows.Close()

	var out []model.AlertConfig
	for rows.Next() {
		var c model.AlertConfig
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.MetricType, &c.ThresholdValue, &c.Operator, &c.Severity, &c.Enabled, &c.NotificationChannels, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan alert config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertAlertConfig inserts or replaces an alert rule, assigning a new ID if
// one isn't already set.
func (s *Store) UpsertAlertConfig(ctx context.Context, c model.AlertConfig) (model.AlertConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_config (id, device_id, metric_type, threshold_value, operator, severity, enabled, notification_channels, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			metric_type = EXCLUDED.metric_type,
			threshold_value = EXCLUDED.threshold_value,
			operator = EXCLUDED.operator,
			severity = EXCLUDED.severity,
			enabled = EXCLUDED.enabled,
			notification_channels = EXCLUDED.notification_channels,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.DeviceID, c.MetricType, c.ThresholdValue, c.Operator, c.Severity, c.Enabled, c.NotificationChannels, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return model.AlertConfig{}, fmt.Errorf("store: upsert alert config id=%s: %w", c.ID, err)
	}
	return c, nil
}

// InsertAlertHistory records one fired alert.
func (s *Store) InsertAlertHistory(ctx context.Context, h model.AlertHistory) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history (triggered_at, config_id, device_id, actual_value, severity, message)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, h.TriggeredAt, h.ConfigID, h.DeviceID, h.ActualValue, h.Severity, h.Message)
	if err != nil {
		return fmt.Errorf("store: insert alert history device=%s config=%s: %w", h.DeviceID, h.ConfigID, err)
	}
	return nil
}

// AlertHistoryFor returns recent alert history for a device, newest first.
func (s *Store) AlertHistoryFor(ctx context.Context, deviceID string, limit int) ([]model.AlertHistory, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT triggered_at, id, config_id, device_id, actual_value, severity, message, acknowledged_at, acknowledged_by, resolved_at, resolved_reason
		FROM alert_history
		WHERE device_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query alert history: %w", err)
	}
	defer rows.Close()

	var out []model.AlertHistory
	for rows.Next() {
		var h model.AlertHistory
		if err := rows.Scan(&h.TriggeredAt, &h.ID, &h.ConfigID, &h.DeviceID, &h.ActualValue, &h.Severity, &h.Message, &h.AcknowledgedAt, &h.AcknowledgedBy, &h.ResolvedAt, &h.ResolvedReason); err != nil {
			return nil, fmt.Errorf("store: scan alert history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CooldownActive reports whether a cooldown for (deviceID, alertConfigID) is
// still in force, and its expiry if so.
func (s *Store) CooldownActive(ctx context.Context, deviceID, alertConfigID string) (bool, time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT expires_at FROM alert_cooldown
		WHERE device_id = $1 AND alert_config_id = $2 AND expires_at > now()
	`, deviceID, alertConfigID).Scan(&expiresAt)
	if err == pgx.ErrNoRows {
		return false, time.Time{}, nil
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("store: cooldown lookup device=%s config=%s: %w", deviceID, alertConfigID, err)
	}
	return true, expiresAt, nil
}

// SetCooldown arms (or re-arms) a cooldown window.
func (s *Store) SetCooldown(ctx context.Context, deviceID, alertConfigID string, expiresAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_cooldown (device_id, alert_config_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id, alert_config_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, deviceID, alertConfigID, expiresAt)
	if err != nil {
		return fmt.Errorf("store: set cooldown device=%s config=%s: %w", deviceID, alertConfigID, err)
	}
	return nil
}

// ActiveMaintenanceWindows returns windows covering t for deviceID or for
// every device (device_id IS NULL).
func (s *Store) ActiveMaintenanceWindows(ctx context.Context, deviceID string, t time.Time) ([]model.MaintenanceWindow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, device_id, start_time, end_time, reason
		FROM maintenance_window
		WHERE (device_id = $1 OR device_id IS NULL) AND start_time <= $2 AND end_time > $2
	`, deviceID, t)
	if err != nil {
		return nil, fmt.Errorf("store: query maintenance windows device=%s: %w", deviceID, err)
	}
	defer rows.Close()

	var out []model.MaintenanceWindow
	for rows.Next() {
		var w model.MaintenanceWindow
		if err := rows.Scan(&w.ID, &w.DeviceID, &w.Start, &w.End, &w.Reason); err != nil {
			return nil, fmt.Errorf("store: scan maintenance window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
