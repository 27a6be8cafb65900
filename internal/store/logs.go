package store

import (
	"context"
	"fmt"

	"github.com/panfm/panfm/internal/model"
)

// InsertThreatLogs bulk-inserts deduplicated threat log rows. Threat logs
// have no natural upsert key beyond (time, device_id, threat_name,
// source_ip), so conflicts are simply ignored rather than merged.
func (s *Store) InsertThreatLogs(ctx context.Context, logs []model.ThreatLog) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, l := range logs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO threat_logs (time, device_id, severity, threat_name, source_ip, dest_ip, envelope)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT DO NOTHING
		`, l.Time, l.DeviceID, l.Severity, l.ThreatName, l.SourceIP, l.DestIP, l.Envelope)
		if err != nil {
			return fmt.Errorf("store: insert threat log device=%s: %w", l.DeviceID, err)
		}
	}
	return nil
}

// InsertTrafficFlows upserts flow rows, accumulating byte/session counters on
// conflict per the composite-key invariant in §3.
func (s *Store) InsertTrafficFlows(ctx context.Context, flows []model.TrafficFlow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, f := range flows {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO traffic_flows (
				time, device_id, source_ip, dest_ip, dest_port, application, category, protocol,
				bytes_total, bytes_sent, bytes_received, sessions, from_zone, to_zone, vlan, hostname
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (time, device_id, source_ip, dest_ip, dest_port, application) DO UPDATE SET
				bytes_total = traffic_flows.bytes_total + EXCLUDED.bytes_total,
				bytes_sent = traffic_flows.bytes_sent + EXCLUDED.bytes_sent,
				bytes_received = traffic_flows.bytes_received + EXCLUDED.bytes_received,
				sessions = traffic_flows.sessions + EXCLUDED.sessions
		`, f.Time, f.DeviceID, f.SourceIP, f.DestIP, f.DestPort, f.Application, f.Category, f.Protocol,
			f.BytesTotal, f.BytesSent, f.BytesReceived, f.Sessions, f.FromZone, f.ToZone, f.VLAN, f.Hostname)
		if err != nil {
			return fmt.Errorf("store: insert traffic flow device=%s: %w", f.DeviceID, err)
		}
	}
	return nil
}

// InsertApplicationSamples records one collection window's per-application
// aggregates.
func (s *Store) InsertApplicationSamples(ctx context.Context, samples []model.ApplicationSample) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, a := range samples {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO application_samples (time, device_id, application, category, bytes, bytes_sent, bytes_received, sessions, top_source, zones, vlan)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT DO NOTHING
		`, a.Time, a.DeviceID, a.Application, a.Category, a.Bytes, a.BytesSent, a.BytesReceived, a.Sessions, a.TopSource, a.Zones, a.VLAN)
		if err != nil {
			return fmt.Errorf("store: insert application sample device=%s: %w", a.DeviceID, err)
		}
	}
	return nil
}

// ThreatLogs returns the most recent threat logs for a device, newest first.
func (s *Store) ThreatLogs(ctx context.Context, deviceID string, limit int) ([]model.ThreatLog, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT time, device_id, severity, threat_name, source_ip, dest_ip
		FROM threat_logs
		WHERE device_id = $1
		ORDER BY time DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query threat logs: %w", err)
	}
	defer rows.Close()

	var out []model.ThreatLog
	for rows.Next() {
		var l model.ThreatLog
		if err := rows.Scan(&l.Time, &l.DeviceID, &l.Severity, &l.ThreatName, &l.SourceIP, &l.DestIP); err != nil {
			return nil, fmt.Errorf("store: scan threat log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TrafficFlowsForClient returns flows where clientIP was either source or
// destination, aggregated by (source, dest, dest port, application, category,
// protocol)
// and ordered by total bytes descending per §4.3's drill-down contract.
func (s *Store) TrafficFlowsForClient(ctx context.Context, deviceID, clientIP string, limit int) ([]model.TrafficFlow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT max(time), device_id, source_ip, dest_ip, dest_port, application, category, protocol,
			SUM(bytes_total), SUM(bytes_sent), SUM(bytes_received), SUM(sessions)
		FROM traffic_flows
		WHERE device_id = $1 AND (source_ip = $2 OR dest_ip = $2)
		GROUP BY device_id, source_ip, dest_ip, dest_port, application, category, protocol
		ORDER BY SUM(bytes_total) DESC
		LIMIT $3
	`, deviceID, clientIP, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query traffic flows for client: %w", err)
	}
	defer rows.Close()

	var out []model.TrafficFlow
	for rows.Next() {
		var f model.TrafficFlow
		if err := rows.Scan(&f.Time, &f.DeviceID, &f.SourceIP, &f.DestIP, &f.DestPort, &f.Application, &f.Category, &f.Protocol,
			&f.BytesTotal, &f.BytesSent, &f.BytesReceived, &f.Sessions); err != nil {
			return nil, fmt.Errorf("store: scan traffic flow: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
