// Package alerting is the Alert Engine: it evaluates a freshly collected
// Sample against every applicable AlertConfig, applies a persistent
// per-severity cooldown, records history, and hands off to the Notification
// Dispatcher (§4.4). Grounded on the teacher's state-machine style in
// controlplane/runmanager (explicit state transitions, always recorded,
// never silently dropped) generalized from run lifecycle to alert lifecycle.
package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/notify"
	"github.com/panfm/panfm/internal/obsmetrics"
)

// cooldownSeconds is the §4.4 per-severity cooldown table: every severity
// currently uses the same 300s window, but each is independently tunable.
var cooldownSeconds = map[model.Severity]time.Duration{
	model.SeverityInfo:     300 * time.Second,
	model.SeverityWarning:  300 * time.Second,
	model.SeverityCritical: 300 * time.Second,
}

// Store is the subset of the Time-Series Store the Alert Engine reads and
// writes.
type Store interface {
	ListAlertConfigs(ctx context.Context) ([]model.AlertConfig, error)
	InsertAlertHistory(ctx context.Context, h model.AlertHistory) error
	CooldownActive(ctx context.Context, deviceID, alertConfigID string) (bool, time.Time, error)
	SetCooldown(ctx context.Context, deviceID, alertConfigID string, expiresAt time.Time) error
	ActiveMaintenanceWindows(ctx context.Context, deviceID string, t time.Time) ([]model.MaintenanceWindow, error)
	GetDevice(ctx context.Context, id string) (model.Device, error)
}

// Dispatcher is the subset of the Notification Dispatcher the Alert Engine
// invokes once a non-cooldown alert is recorded.
type Dispatcher interface {
	Dispatch(ctx context.Context, channelIDs []string, alert model.AlertHistory) map[string]notify.Result
}

// Engine evaluates samples against configured thresholds.
type Engine struct {
	store      Store
	dispatcher Dispatcher
	log        zerolog.Logger
	metrics    *obsmetrics.Metrics
	now        func() time.Time
}

// New builds an Engine. dispatcher may be nil to record-only (tests, or a
// deployment with no notification channels configured).
func New(store Store, dispatcher Dispatcher, logger zerolog.Logger, metrics *obsmetrics.Metrics) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "alert_engine").Logger(),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Evaluate runs the §4.4 five-step algorithm for one device's sample:
// flatten metrics, match applicable enabled configs, compare, cooldown-gate,
// record + dispatch.
func (e *Engine) Evaluate(ctx context.Context, deviceID string, sample model.Sample) {
	configs, err := e.store.ListAlertConfigs(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("device_id", deviceID).Msg("listing alert configs")
		return
	}

	metrics := sample.Flatten()
	now := e.now().UTC()

	inWindow, err := e.inMaintenanceWindow(ctx, deviceID, now)
	if err != nil {
		e.log.Error().Err(err).Str("device_id", deviceID).Msg("checking maintenance windows")
	}

	for _, cfg := range configs {
		if !cfg.Enabled || !cfg.AppliesTo(deviceID) {
			continue
		}
		actual, ok := metrics[cfg.MetricType]
		if !ok {
			continue
		}
		if !cfg.Operator.Compare(actual, cfg.ThresholdValue) {
			continue
		}

		e.fire(ctx, deviceID, cfg, actual, now, inWindow)
	}
}

func (e *Engine) inMaintenanceWindow(ctx context.Context, deviceID string, now time.Time) (bool, error) {
	windows, err := e.store.ActiveMaintenanceWindows(ctx, deviceID, now)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) fire(ctx context.Context, deviceID string, cfg model.AlertConfig, actual float64, now time.Time, inMaintenanceWindow bool) {
	deviceName := deviceID
	if d, err := e.store.GetDevice(ctx, deviceID); err == nil {
		deviceName = d.Name
	}

	message := formatAlertMessage(cfg.MetricType, actual, cfg.ThresholdValue, cfg.Operator, deviceName)

	active, _, err := e.store.CooldownActive(ctx, deviceID, cfg.ID)
	if err != nil {
		e.log.Error().Err(err).Str("device_id", deviceID).Str("config_id", cfg.ID).Msg("checking cooldown")
		return
	}

	if active || inMaintenanceWindow {
		prefix := "[COOLDOWN] "
		if inMaintenanceWindow {
			prefix = "[MAINTENANCE] "
		}
		hist := model.AlertHistory{
			TriggeredAt: now, ConfigID: cfg.ID, DeviceID: deviceID,
			ActualValue: actual, Severity: cfg.Severity, Message: prefix + message,
		}
		if err := e.store.InsertAlertHistory(ctx, hist); err != nil {
			e.log.Error().Err(err).Msg("recording suppressed alert")
		}
		return
	}

	hist := model.AlertHistory{
		TriggeredAt: now, ConfigID: cfg.ID, DeviceID: deviceID,
		ActualValue: actual, Severity: cfg.Severity, Message: message,
	}
	if err := e.store.InsertAlertHistory(ctx, hist); err != nil {
		e.log.Error().Err(err).Msg("recording alert")
		return
	}
	if e.metrics != nil {
		e.metrics.AlertsFired.WithLabelValues(string(cfg.Severity), cfg.MetricType).Inc()
	}

	ttl := cooldownSeconds[cfg.Severity]
	if ttl == 0 {
		ttl = 300 * time.Second
	}
	if err := e.store.SetCooldown(ctx, deviceID, cfg.ID, now.Add(ttl)); err != nil {
		e.log.Error().Err(err).Msg("setting cooldown")
	}

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, cfg.NotificationChannels, hist)
	}
}

// formatAlertMessage deterministically renders one alert's human-readable
// description, matching the original system's "<device>: <metric> <op>
// <threshold> (actual <value>)" structure.
func formatAlertMessage(metricType string, actual, threshold float64, op model.Operator, deviceName string) string {
	return fmt.Sprintf("%s: %s %s %.2f (actual %.2f)", deviceName, metricType, string(op), threshold, actual)
}
