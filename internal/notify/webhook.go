package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/panfm/panfm/internal/model"
)

// webhookConfig is the JSON shape stored for kind=webhook.
type webhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// webhookPayload is the body POSTed to the configured URL.
type webhookPayload struct {
	Severity    string  `json:"severity"`
	DeviceID    string  `json:"device_id"`
	Message     string  `json:"message"`
	ActualValue float64 `json:"actual_value"`
	TriggeredAt string  `json:"triggered_at"`
}

// sendWebhook POSTs the alert once, with no retry (§4.5: webhook delivery is
// best-effort and must not block the dispatch fan-out on a slow endpoint).
func (d *Dispatcher) sendWebhook(ctx context.Context, channel model.NotificationChannel, alert model.AlertHistory) error {
	var cfg webhookConfig
	if err := decodeConfig(channel.Config, &cfg); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("webhook channel %s missing url", channel.ID)
	}

	body, err := json.Marshal(webhookPayload{
		Severity:    string(alert.Severity),
		DeviceID:    alert.DeviceID,
		Message:     alert.Message,
		ActualValue: alert.ActualValue,
		TriggeredAt: alert.TriggeredAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
