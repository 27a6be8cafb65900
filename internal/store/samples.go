package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panfm/panfm/internal/model"
)

const samplePageSize = 100

// InsertSample upserts one poll result. The upsert is keyed on (time,
// device_id): a repeated poll for the same timestamp updates rather than
// duplicates, matching the idempotent-write invariant of §4.3.
func (s *Store) InsertSample(ctx context.Context, sample model.Sample) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	topClients, err := json.Marshal(sample.TopClients)
	if err != nil {
		return fmt.Errorf("store: marshal top_clients: %w", err)
	}
	topCategories, err := json.Marshal(sample.TopCategories)
	if err != nil {
		return fmt.Errorf("store: marshal top_categories: %w", err)
	}
	topApps, err := json.Marshal(sample.TopApplications)
	if err != nil {
		return fmt.Errorf("store: marshal top_applications: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO samples (
			time, device_id,
			inbound_mbps, outbound_mbps, total_mbps, inbound_pps, outbound_pps,
			sessions_active, sessions_tcp, sessions_udp, sessions_icmp, sessions_capacity, sessions_util_pct,
			cpu_data_plane, cpu_management, memory_pct,
			disk_root_pct, disk_config_pct, disk_log_pct,
			app_version, threat_version, av_version, wildfire_version,
			hostname, panos_version, uptime_seconds,
			license_valid, license_expiry, license_support, license_threat, license_url_filtering, license_global_protect,
			top_clients, top_categories, top_applications
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26,
			$27, $28, $29, $30, $31, $32,
			$33, $34, $35
		)
		ON CONFLICT (time, device_id) DO UPDATE SET
			inbound_mbps = EXCLUDED.inbound_mbps,
			outbound_mbps = EXCLUDED.outbound_mbps,
			total_mbps = EXCLUDED.total_mbps,
			inbound_pps = EXCLUDED.inbound_pps,
			outbound_pps = EXCLUDED.outbound_pps,
			sessions_active = EXCLUDED.sessions_active,
			cpu_data_plane = EXCLUDED.cpu_data_plane,
			memory_pct = EXCLUDED.memory_pct
	`,
		sample.Time, sample.DeviceID,
		sample.InboundMbps, sample.OutboundMbps, sample.TotalMbps, sample.InboundPPS, sample.OutboundPPS,
		sample.Sessions.Active, sample.Sessions.TCP, sample.Sessions.UDP, sample.Sessions.ICMP, sample.Sessions.Capacity, sample.Sessions.Utilization,
		sample.CPU.DataPlaneCPU, sample.CPU.ManagementCPU, sample.MemoryPct,
		sample.DiskUsage.RootPct, sample.DiskUsage.ConfigPct, sample.DiskUsage.LogPct,
		sample.DatabaseVersions.AppVersion, sample.DatabaseVersions.ThreatVersion, sample.DatabaseVersions.AVVersion, sample.DatabaseVersions.WildfireVersion,
		sample.Hostname, sample.PANOSVersion, sample.UptimeSeconds,
		sample.License.Valid, sample.License.ExpiryDate, sample.License.Support, sample.License.Threat, sample.License.URLFiltering, sample.License.GlobalProtect,
		topClients, topCategories, topApps,
	)
	if err != nil {
		return fmt.Errorf("store: insert sample device=%s time=%s: %w", sample.DeviceID, sample.Time, err)
	}
	return nil
}

// InsertSamples bulk-inserts in pages of samplePageSize, grounded on the
// pack's batched-write convention: a single oversized statement risks
// exceeding Postgres's parameter limit and loses per-row isolation on error.
func (s *Store) InsertSamples(ctx context.Context, samples []model.Sample) error {
	for start := 0; start < len(samples); start += samplePageSize {
		end := start + samplePageSize
		if end > len(samples) {
			end = len(samples)
		}
		for _, sample := range samples[start:end] {
			if err := s.InsertSample(ctx, sample); err != nil {
				return err
			}
		}
	}
	return nil
}

// QuerySamples returns samples for deviceID within [start, end), routed to
// the raw table, a continuous aggregate, or auto-resolved per §4.3.
func (s *Store) QuerySamples(ctx context.Context, deviceID string, start, end time.Time, res model.Resolution) ([]model.Sample, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if res == model.ResolutionAuto || res == "" {
		res = model.ResolveAuto(end.Sub(start))
	}

	table := "samples"
	switch res {
	case model.ResolutionHourly:
		table = "samples_hourly"
	case model.ResolutionDaily:
		table = "samples_daily"
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT time, device_id,
			COALESCE(inbound_mbps,0), COALESCE(outbound_mbps,0), COALESCE(total_mbps,0),
			COALESCE(inbound_pps,0), COALESCE(outbound_pps,0),
			COALESCE(sessions_active,0), COALESCE(cpu_data_plane,0), COALESCE(memory_pct,0)
		FROM %s
		WHERE device_id = $1 AND time >= $2 AND time < $3
		ORDER BY time ASC
	`, table), deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query samples: %w", err)
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		var sample model.Sample
		if err := rows.Scan(
			&sample.Time, &sample.DeviceID,
			&sample.InboundMbps, &sample.OutboundMbps, &sample.TotalMbps,
			&sample.InboundPPS, &sample.OutboundPPS,
			&sample.Sessions.Active, &sample.CPU.DataPlaneCPU, &sample.MemoryPct,
		); err != nil {
			return nil, fmt.Errorf("store: scan sample: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// LatestSample returns the most recent sample for a device, or pgx.ErrNoRows
// if none exists.
func (s *Store) LatestSample(ctx context.Context, deviceID string) (model.Sample, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sample model.Sample
	err := s.pool.QueryRow(ctx, `
		SELECT time, device_id, inbound_mbps, outbound_mbps, total_mbps,
			inbound_pps, outbound_pps, sessions_active, cpu_data_plane, memory_pct
		FROM samples
		WHERE device_id = $1
		ORDER BY time DESC
		LIMIT 1
	`, deviceID).Scan(
		&sample.Time, &sample.DeviceID, &sample.InboundMbps, &sample.OutboundMbps, &sample.TotalMbps,
		&sample.InboundPPS, &sample.OutboundPPS, &sample.Sessions.Active, &sample.CPU.DataPlaneCPU, &sample.MemoryPct,
	)
	if err == pgx.ErrNoRows {
		return model.Sample{}, err
	}
	if err != nil {
		return model.Sample{}, fmt.Errorf("store: latest sample device=%s: %w", deviceID, err)
	}
	return sample, nil
}

// ClearDeviceData deletes all samples, logs and alert history for one device.
func (s *Store) ClearDeviceData(ctx context.Context, deviceID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin clear-device tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"samples", "threat_logs", "traffic_flows", "application_samples", "connected_devices", "alert_history"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE device_id = $1", table), deviceID); err != nil {
			return fmt.Errorf("store: clear %s for device=%s: %w", table, deviceID, err)
		}
	}
	return tx.Commit(ctx)
}

// ClearAllData truncates every time-series table. Used by the admin
// clear-database endpoint; device and alert configuration rows survive.
func (s *Store) ClearAllData(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `TRUNCATE samples, threat_logs, traffic_flows, application_samples, connected_devices, alert_history`)
	if err != nil {
		return fmt.Errorf("store: clear all data: %w", err)
	}
	return nil
}
