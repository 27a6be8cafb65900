package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/panfm/panfm/internal/model"
)

// slackConfig is the JSON shape stored for kind=slack.
type slackConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	Channel    string `json:"channel,omitempty"`
}

func severityColor(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "danger"
	case model.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

// sendSlack posts the alert as a single attachment via Slack's incoming
// webhook API, the same transport shape the pack's vigil alert-triage tool
// wires its slack notifier through.
func (d *Dispatcher) sendSlack(ctx context.Context, channel model.NotificationChannel, alert model.AlertHistory) error {
	var cfg slackConfig
	if err := decodeConfig(channel.Config, &cfg); err != nil {
		return err
	}

	d.mu.RLock()
	webhookURL := firstNonEmpty(cfg.WebhookURL, d.fallback.slackWebhookURL)
	d.mu.RUnlock()
	if webhookURL == "" {
		return fmt.Errorf("slack channel %s missing webhook_url", channel.ID)
	}

	msg := &slack.WebhookMessage{
		Channel: cfg.Channel,
		Attachments: []slack.Attachment{
			{
				Color: severityColor(alert.Severity),
				Title: fmt.Sprintf("PANfm alert: %s", alert.Severity),
				Text:  alert.Message,
				Fields: []slack.AttachmentField{
					{Title: "Device", Value: alert.DeviceID, Short: true},
					{Title: "Actual value", Value: fmt.Sprintf("%.2f", alert.ActualValue), Short: true},
				},
				Ts: json.Number(fmt.Sprintf("%d", alert.TriggeredAt.Unix())),
			},
		},
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, webhookURL, d.httpClient, msg); err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}
