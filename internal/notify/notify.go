// Package notify is the Notification Dispatcher: it fans an alert out to
// zero or more configured channels (email, webhook, slack) and reports each
// channel's outcome without ever panicking on a malformed channel config
// (§4.5). Channel config is decoded from the stored JSON blob with a DB-first,
// env-var-fallback precedence.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/panfm/panfm/internal/model"
)

// Result is one channel's dispatch outcome.
type Result struct {
	Enabled bool   `json:"enabled"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// ChannelStore is the subset of the Time-Series Store the Dispatcher reads
// channel configuration from.
type ChannelStore interface {
	ListNotificationChannels(ctx context.Context) ([]model.NotificationChannel, error)
	GetNotificationChannel(ctx context.Context, id string) (model.NotificationChannel, error)
}

// Dispatcher sends one alert to each requested channel concurrently.
type Dispatcher struct {
	store      ChannelStore
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.RWMutex
	fallback fallbackConfig
}

// fallbackConfig holds the env-var-sourced defaults used when a channel's
// stored config is empty, per §4.5's DB-first/env-fallback precedence.
type fallbackConfig struct {
	smtpHost, smtpUser, smtpPass, smtpFrom string
	smtpPort                               int
	slackWebhookURL                        string
}

// New builds a Dispatcher and populates the fallback config with Reload. Call
// Reload again whenever env vars might have changed.
func New(store ChannelStore, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		store: store,
		log:   logger.With().Str("component", "notify").Logger(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	d.Reload()
	return d
}

// Reload re-reads the PANFM_SMTP_* / PANFM_SLACK_WEBHOOK_URL environment
// fallback, for channel configs that don't set their own values.
func (d *Dispatcher) Reload() {
	port, _ := strconv.Atoi(os.Getenv("PANFM_SMTP_PORT"))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = fallbackConfig{
		smtpHost:        os.Getenv("PANFM_SMTP_HOST"),
		smtpUser:        os.Getenv("PANFM_SMTP_USERNAME"),
		smtpPass:        os.Getenv("PANFM_SMTP_PASSWORD"),
		smtpFrom:        os.Getenv("PANFM_SMTP_FROM"),
		smtpPort:        port,
		slackWebhookURL: os.Getenv("PANFM_SLACK_WEBHOOK_URL"),
	}
}

// Dispatch sends alert to every channel named in channelIDs, concurrently,
// and returns each channel's outcome keyed by channel ID. A channel that
// cannot be loaded reports enabled=false, and one whose kind is unrecognized
// reports sent=false with an error, rather than aborting the whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, channelIDs []string, alert model.AlertHistory) map[string]Result {
	results := make(map[string]Result, len(channelIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range channelIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := d.dispatchOne(ctx, id, alert)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, channelID string, alert model.AlertHistory) Result {
	channel, err := d.store.GetNotificationChannel(ctx, channelID)
	if err != nil {
		return Result{Enabled: false, Error: fmt.Sprintf("loading channel: %v", err)}
	}
	if !channel.Enabled {
		return Result{Enabled: false}
	}

	var sendErr error
	switch channel.Kind {
	case model.NotificationEmail:
		sendErr = d.sendEmail(ctx, channel, alert)
	case model.NotificationWebhook:
		sendErr = d.sendWebhook(ctx, channel, alert)
	case model.NotificationSlack:
		sendErr = d.sendSlack(ctx, channel, alert)
	default:
		sendErr = fmt.Errorf("unknown channel kind %q", channel.Kind)
	}

	if sendErr != nil {
		d.log.Warn().Err(sendErr).Str("channel_id", channelID).Str("kind", string(channel.Kind)).Msg("notification dispatch failed")
		return Result{Enabled: true, Sent: false, Error: sendErr.Error()}
	}
	return Result{Enabled: true, Sent: true}
}

// Test sends a synthetic alert through one channel, for the API server's
// channel-test endpoint.
func (d *Dispatcher) Test(ctx context.Context, channelID string) Result {
	probe := model.AlertHistory{
		TriggeredAt: time.Now().UTC(),
		DeviceID:    "test-device",
		Severity:    model.SeverityInfo,
		Message:     "This is a test notification from PANfm.",
	}
	return d.dispatchOne(ctx, channelID, probe)
}

func decodeConfig(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding channel config: %w", err)
	}
	return nil
}
