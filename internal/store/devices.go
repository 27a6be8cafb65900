package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panfm/panfm/internal/model"
)

// ListDevices returns every registered device, enabled and disabled alike.
func (s *Store) ListDevices(ctx context.Context) ([]model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, management_endpoint, encrypted_api_key, enabled, monitored_interfaces, group_label, created_at, updated_at
		FROM devices
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.ManagementEndpoint, &d.EncryptedAPIKey, &d.Enabled, &d.MonitoredInterfaces, &d.GroupLabel, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDevice fetches one device by ID.
func (s *Store) GetDevice(ctx context.Context, id string) (model.Device, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var d model.Device
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, management_endpoint, encrypted_api_key, enabled, monitored_interfaces, group_label, created_at, updated_at
		FROM devices WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.ManagementEndpoint, &d.EncryptedAPIKey, &d.Enabled, &d.MonitoredInterfaces, &d.GroupLabel, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Device{}, err
	}
	if err != nil {
		return model.Device{}, fmt.Errorf("store: get device id=%s: %w", id, err)
	}
	return d, nil
}

// UpsertDevice inserts or replaces a device's registration.
func (s *Store) UpsertDevice(ctx context.Context, d model.Device) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (id, name, management_endpoint, encrypted_api_key, enabled, monitored_interfaces, group_label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			management_endpoint = EXCLUDED.management_endpoint,
			encrypted_api_key = EXCLUDED.encrypted_api_key,
			enabled = EXCLUDED.enabled,
			monitored_interfaces = EXCLUDED.monitored_interfaces,
			group_label = EXCLUDED.group_label,
			updated_at = EXCLUDED.updated_at
	`, d.ID, d.Name, d.ManagementEndpoint, d.EncryptedAPIKey, d.Enabled, d.MonitoredInterfaces, d.GroupLabel, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert device id=%s: %w", d.ID, err)
	}
	return nil
}

// DeleteDevice removes a device registration. The schema's ON DELETE CASCADE
// foreign keys remove the device's samples, logs and other per-device rows
// with it.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete device id=%s: %w", id, err)
	}
	return nil
}

// InsertConnectedDevices records one ARP-table snapshot.
func (s *Store) InsertConnectedDevices(ctx context.Context, devices []model.ConnectedDevice) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, cd := range devices {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO connected_devices (time, device_id, ip, mac, hostname, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
		`, cd.Time, cd.DeviceID, cd.IP, cd.MAC, cd.Hostname, cd.LastSeen)
		if err != nil {
			return fmt.Errorf("store: insert connected device=%s ip=%s: %w", cd.DeviceID, cd.IP, err)
		}
	}
	return nil
}

// ConnectedDevices returns the latest ARP snapshot per MAC for a device,
// filtered by DeviceMetadata tags when tags is non-empty.
func (s *Store) ConnectedDevices(ctx context.Context, deviceID string, tags []string, mode model.TagFilterMode) ([]model.ConnectedDevice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT DISTINCT ON (cd.mac) cd.time, cd.device_id, cd.ip, cd.mac, cd.hostname, cd.last_seen
		FROM connected_devices cd
	`
	args := []any{deviceID}
	if len(tags) > 0 {
		query += ` JOIN device_metadata dm ON dm.device_id = cd.device_id AND dm.mac = cd.mac`
	}
	query += ` WHERE cd.device_id = $1`
	if len(tags) > 0 {
		if mode == model.TagFilterAnd {
			query += ` AND dm.tags @> $2`
		} else {
			query += ` AND dm.tags && $2`
		}
		args = append(args, tags)
	}
	query += ` ORDER BY cd.mac, cd.time DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query connected devices: %w", err)
	}
	defer rows.Close()

	var out []model.ConnectedDevice
	for rows.Next() {
		var cd model.ConnectedDevice
		if err := rows.Scan(&cd.Time, &cd.DeviceID, &cd.IP, &cd.MAC, &cd.Hostname, &cd.LastSeen); err != nil {
			return nil, fmt.Errorf("store: scan connected device: %w", err)
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

// UpsertDeviceMetadata records operator-supplied naming/tagging for a client.
func (s *Store) UpsertDeviceMetadata(ctx context.Context, m model.DeviceMetadata) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_metadata (device_id, mac, custom_name, location, comment, tags, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, mac) DO UPDATE SET
			custom_name = EXCLUDED.custom_name,
			location = EXCLUDED.location,
			comment = EXCLUDED.comment,
			tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at
	`, m.DeviceID, m.MAC, m.CustomName, m.Location, m.Comment, m.Tags, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert device metadata device=%s mac=%s: %w", m.DeviceID, m.MAC, err)
	}
	return nil
}

// PurgeOlderThan deletes rows older than cutoff from samples, threat_logs,
// traffic_flows, application_samples, connected_devices, category_bandwidth
// and client_bandwidth, implementing the database_cleanup job's retention
// sweep. alert_history and scheduler_stats_history are not purged here.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int64
	for _, table := range []string{"samples", "threat_logs", "traffic_flows", "application_samples", "connected_devices", "category_bandwidth", "client_bandwidth"} {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE time < $1", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("store: purge %s before %s: %w", table, cutoff, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
