package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panfm/panfm/internal/model"
)

// TopCategories returns the highest-bandwidth category per traffic type over
// [start, end), matching the §3 top_categories tagged-variant shape.
func (s *Store) TopCategories(ctx context.Context, deviceID string, start, end time.Time) (model.TopCategories, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out model.TopCategories
	if c, err := s.topCategoryFor(ctx, deviceID, model.TrafficLAN, start, end); err != nil {
		return out, err
	} else {
		out.LAN = c
	}
	if c, err := s.topCategoryFor(ctx, deviceID, model.TrafficInternet, start, end); err != nil {
		return out, err
	} else {
		out.Internet = c
	}
	if c, err := s.topCategoryFor(ctx, deviceID, model.TrafficWAN, start, end); err != nil {
		return out, err
	} else {
		out.WAN = c
	}
	return out, nil
}

func (s *Store) topCategoryFor(ctx context.Context, deviceID string, tt model.TrafficType, start, end time.Time) (*model.CategoryInfo, error) {
	var c model.CategoryInfo
	err := s.pool.QueryRow(ctx, `
		SELECT category, SUM(bytes), SUM(sessions), SUM(bytes_sent), SUM(bytes_received)
		FROM category_bandwidth
		WHERE device_id = $1 AND traffic_type = $2 AND time >= $3 AND time < $4
		GROUP BY category
		ORDER BY SUM(bytes) DESC
		LIMIT 1
	`, deviceID, tt, start, end).Scan(&c.Category, &c.Bytes, &c.Sessions, &c.BytesSent, &c.BytesReceived)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // no rows in window: field stays nil per §3, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("store: query top category device=%s traffic_type=%s: %w", deviceID, tt, err)
	}
	return &c, nil
}

// TopClients returns the highest-bandwidth client overall, internal-only, and
// internet-bound, matching the §3 top_clients tagged-variant shape.
func (s *Store) TopClients(ctx context.Context, deviceID string, start, end time.Time) (model.TopClients, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out model.TopClients
	overall, err := s.topClientFor(ctx, deviceID, model.TrafficTotal, start, end)
	if err != nil {
		return out, err
	}
	out.Overall = overall
	internal, err := s.topClientFor(ctx, deviceID, model.TrafficLAN, start, end)
	if err != nil {
		return out, err
	}
	out.Internal = internal
	internet, err := s.topClientFor(ctx, deviceID, model.TrafficInternet, start, end)
	if err != nil {
		return out, err
	}
	out.Internet = internet
	return out, nil
}

func (s *Store) topClientFor(ctx context.Context, deviceID string, tt model.TrafficType, start, end time.Time) (*model.ClientInfo, error) {
	var c model.ClientInfo
	var hostname, customName *string
	err := s.pool.QueryRow(ctx, `
		SELECT cb.client_ip, SUM(cb.bytes) AS total,
			MAX(dm.custom_name) AS custom_name
		FROM client_bandwidth cb
		LEFT JOIN device_metadata dm ON dm.device_id = cb.device_id
		WHERE cb.device_id = $1 AND cb.traffic_type = $2 AND cb.time >= $3 AND cb.time < $4
		GROUP BY cb.client_ip
		ORDER BY total DESC
		LIMIT 1
	`, deviceID, tt, start, end).Scan(&c.IP, &c.TotalBytes, &customName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // no rows in window: field stays nil per §3, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("store: query top client device=%s traffic_type=%s: %w", deviceID, tt, err)
	}
	if hostname != nil {
		c.Hostname = *hostname
	}
	if customName != nil {
		c.CustomName = *customName
	}
	return &c, nil
}

// TopApplications returns the top-N applications by bandwidth over the window.
func (s *Store) TopApplications(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.TopApplication, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT application, category, SUM(sessions), SUM(bytes)
		FROM application_samples
		WHERE device_id = $1 AND time >= $2 AND time < $3
		GROUP BY application, category
		ORDER BY SUM(bytes) DESC
		LIMIT $4
	`, deviceID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query top applications: %w", err)
	}
	defer rows.Close()

	var out []model.TopApplication
	for rows.Next() {
		var a model.TopApplication
		if err := rows.Scan(&a.Name, &a.Category, &a.Sessions, &a.Bytes); err != nil {
			return nil, fmt.Errorf("store: scan top application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertCategoryBandwidth batch-inserts one tick's per-category aggregates,
// the write side of the category_bandwidth hypertable TopCategories reads.
func (s *Store) InsertCategoryBandwidth(ctx context.Context, rows []model.CategoryBandwidth) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, c := range rows {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO category_bandwidth (time, device_id, category, traffic_type, bytes, sessions, bytes_sent, bytes_received)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, c.Time, c.DeviceID, c.Category, c.TrafficType, c.Bytes, c.Sessions, c.BytesSent, c.BytesReceived)
		if err != nil {
			return fmt.Errorf("store: insert category bandwidth device=%s category=%s: %w", c.DeviceID, c.Category, err)
		}
	}
	return nil
}

// InsertClientBandwidth batch-inserts one tick's per-client aggregates, the
// write side of the client_bandwidth hypertable TopClients reads.
func (s *Store) InsertClientBandwidth(ctx context.Context, rows []model.ClientBandwidth) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, c := range rows {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO client_bandwidth (time, device_id, client_ip, traffic_type, bytes, sessions, window_seconds)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, c.Time, c.DeviceID, c.ClientIP, c.TrafficType, c.Bytes, c.Sessions, c.WindowSeconds)
		if err != nil {
			return fmt.Errorf("store: insert client bandwidth device=%s client=%s: %w", c.DeviceID, c.ClientIP, err)
		}
	}
	return nil
}
