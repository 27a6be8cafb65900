package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/panfm/panfm/internal/model"
)

// ListNotificationChannels returns every configured notification channel.
func (s *Store) ListNotificationChannels(ctx context.Context) ([]model.NotificationChannel, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, kind, name, config, enabled FROM notification_channel`)
	if err != nil {
		return nil, fmt.Errorf("store: list notification channels: %w", err)
	}
	defer rows.Close()

	var out []model.NotificationChannel
	for rows.Next() {
		var c model.NotificationChannel
		if err := rows.Scan(&c.ID, &c.Kind, &c.Name, &c.Config, &c.Enabled); err != nil {
			return nil, fmt.Errorf("store: scan notification channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetNotificationChannel fetches one channel by ID.
func (s *Store) GetNotificationChannel(ctx context.Context, id string) (model.NotificationChannel, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var c model.NotificationChannel
	err := s.pool.QueryRow(ctx, `SELECT id, kind, name, config, enabled FROM notification_channel WHERE id = $1`, id).
		Scan(&c.ID, &c.Kind, &c.Name, &c.Config, &c.Enabled)
	if err == pgx.ErrNoRows {
		return model.NotificationChannel{}, err
	}
	if err != nil {
		return model.NotificationChannel{}, fmt.Errorf("store: get notification channel id=%s: %w", id, err)
	}
	return c, nil
}

// UpsertNotificationChannel inserts or replaces a channel, assigning a new ID
// if one isn't already set.
func (s *Store) UpsertNotificationChannel(ctx context.Context, c model.NotificationChannel) (model.NotificationChannel, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_channel (id, kind, name, config, enabled)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name, config = EXCLUDED.config, enabled = EXCLUDED.enabled
	`, c.ID, c.Kind, c.Name, c.Config, c.Enabled)
	if err != nil {
		return model.NotificationChannel{}, fmt.Errorf("store: upsert notification channel id=%s: %w", c.ID, err)
	}
	return c, nil
}

// DeleteNotificationChannel removes a channel.
func (s *Store) DeleteNotificationChannel(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM notification_channel WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete notification channel id=%s: %w", id, err)
	}
	return nil
}
