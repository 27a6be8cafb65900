package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/panfm/panfm/internal/model"
)

// EnqueueCollectionRequest queues an on-demand poll for deviceID, for the
// scheduler's 5-second IPC poll loop (§4.2) to pick up. If the device already
// has a queued or running request, that request is returned instead.
func (s *Store) EnqueueCollectionRequest(ctx context.Context, deviceID string) (model.CollectionRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	var req model.CollectionRequest
	err := s.pool.QueryRow(ctx, `
		SELECT id, device_id, status, created_at, updated_at
		FROM collection_requests
		WHERE device_id = $1 AND status IN ($2, $3)
		ORDER BY created_at
		LIMIT 1
	`, deviceID, model.RequestQueued, model.RequestRunning).Scan(&req.ID, &req.DeviceID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err == nil {
		return req, nil
	}
	if err != pgx.ErrNoRows {
		return model.CollectionRequest{}, fmt.Errorf("store: find pending collection request device=%s: %w", deviceID, err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO collection_requests (device_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id, device_id, status, created_at, updated_at
	`, deviceID, model.RequestQueued, now).Scan(&req.ID, &req.DeviceID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return model.CollectionRequest{}, fmt.Errorf("store: enqueue collection request device=%s: %w", deviceID, err)
	}
	return req, nil
}

// ClaimQueuedRequests atomically marks up to limit queued requests as running
// and returns them, so two scheduler instances never double-poll the same
// on-demand request.
func (s *Store) ClaimQueuedRequests(ctx context.Context, limit int) ([]model.CollectionRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		UPDATE collection_requests
		SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM collection_requests
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, device_id, status, created_at, updated_at
	`, model.RequestRunning, model.RequestQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim queued requests: %w", err)
	}
	defer rows.Close()

	var out []model.CollectionRequest
	for rows.Next() {
		var r model.CollectionRequest
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan collection request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteRequest marks a request completed or failed.
func (s *Store) CompleteRequest(ctx context.Context, id int64, failErr error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	status := model.RequestCompleted
	var errText *string
	if failErr != nil {
		status = model.RequestFailed
		msg := failErr.Error()
		errText = &msg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE collection_requests SET status = $1, error = $2, updated_at = now() WHERE id = $3
	`, status, errText, id)
	if err != nil {
		return fmt.Errorf("store: complete collection request id=%d: %w", id, err)
	}
	return nil
}

// RequestStatus fetches one collection request's current state, or
// pgx.ErrNoRows if it doesn't exist.
func (s *Store) RequestStatus(ctx context.Context, id int64) (model.CollectionRequest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var r model.CollectionRequest
	err := s.pool.QueryRow(ctx, `
		SELECT id, device_id, status, created_at, updated_at, error FROM collection_requests WHERE id = $1
	`, id).Scan(&r.ID, &r.DeviceID, &r.Status, &r.CreatedAt, &r.UpdatedAt, &r.Error)
	if err == pgx.ErrNoRows {
		return model.CollectionRequest{}, err
	}
	if err != nil {
		return model.CollectionRequest{}, fmt.Errorf("store: request status id=%d: %w", id, err)
	}
	return r, nil
}

// InsertSchedulerStat records one scheduler heartbeat row.
func (s *Store) InsertSchedulerStat(ctx context.Context, stat model.SchedulerStat) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduler_stats_history (time, collection_count, devices_enabled, devices_failed, process_cpu_pct, process_mem_bytes, refresh_interval_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, stat.Time, stat.CollectionCount, stat.DevicesEnabled, stat.DevicesFailed, stat.ProcessCPUPct, stat.ProcessMemBytes, stat.RefreshIntervalSeconds)
	if err != nil {
		return fmt.Errorf("store: insert scheduler stat: %w", err)
	}
	return nil
}

// LatestSchedulerStat returns the most recent heartbeat, or pgx.ErrNoRows if
// the scheduler has never reported one.
func (s *Store) LatestSchedulerStat(ctx context.Context) (model.SchedulerStat, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var stat model.SchedulerStat
	err := s.pool.QueryRow(ctx, `
		SELECT time, collection_count, devices_enabled, devices_failed, process_cpu_pct, process_mem_bytes, refresh_interval_seconds
		FROM scheduler_stats_history ORDER BY time DESC LIMIT 1
	`).Scan(&stat.Time, &stat.CollectionCount, &stat.DevicesEnabled, &stat.DevicesFailed, &stat.ProcessCPUPct, &stat.ProcessMemBytes, &stat.RefreshIntervalSeconds)
	if err == pgx.ErrNoRows {
		return model.SchedulerStat{}, err
	}
	if err != nil {
		return model.SchedulerStat{}, fmt.Errorf("store: latest scheduler stat: %w", err)
	}
	return stat, nil
}

// GetSetting reads one row from the settings table, or pgx.ErrNoRows if the
// key has never been set. The heartbeat job polls "refresh_interval_seconds"
// here to support live rescheduling without a process restart.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts one settings row, used by the API server to let
// operators change the collector's refresh interval at runtime.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

// PruneCompletedRequests deletes completed/failed collection_requests rows
// older than cutoff, run from the same database_cleanup tick that purges
// time-series data (§4.2).
func (s *Store) PruneCompletedRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM collection_requests
		WHERE status IN ($1, $2) AND updated_at < $3
	`, model.RequestCompleted, model.RequestFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune completed requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
