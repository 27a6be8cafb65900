package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/notify"
)

type fakeStore struct {
	mu             sync.Mutex
	configs        []model.AlertConfig
	history        []model.AlertHistory
	cooldownActive map[string]bool
	windows        []model.MaintenanceWindow
	device         model.Device
	cooldownsSet   int
}

func (f *fakeStore) ListAlertConfigs(ctx context.Context) ([]model.AlertConfig, error) {
	return f.configs, nil
}

func (f *fakeStore) InsertAlertHistory(ctx context.Context, h model.AlertHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}

func (f *fakeStore) CooldownActive(ctx context.Context, deviceID, alertConfigID string) (bool, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldownActive[deviceID+"|"+alertConfigID], time.Time{}, nil
}

func (f *fakeStore) SetCooldown(ctx context.Context, deviceID, alertConfigID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldownsSet++
	return nil
}

func (f *fakeStore) ActiveMaintenanceWindows(ctx context.Context, deviceID string, t time.Time) ([]model.MaintenanceWindow, error) {
	return f.windows, nil
}

func (f *fakeStore) GetDevice(ctx context.Context, id string) (model.Device, error) {
	return f.device, nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []model.AlertHistory
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, channelIDs []string, alert model.AlertHistory) map[string]notify.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, alert)
	return map[string]notify.Result{}
}

func sampleAbove(cpu float64) model.Sample {
	return model.Sample{CPU: model.CPU{DataPlaneCPU: cpu}}
}

func TestEngine_Evaluate_FiresAboveThreshold(t *testing.T) {
	store := &fakeStore{
		configs: []model.AlertConfig{{
			ID: "cfg-1", MetricType: "cpu", Operator: model.OpGreaterThan,
			ThresholdValue: 80, Severity: model.SeverityCritical, Enabled: true,
			NotificationChannels: []string{"chan-1"},
		}},
		cooldownActive: map[string]bool{},
		device:         model.Device{ID: "fw-1", Name: "fw-1.example.com"},
	}
	dispatcher := &fakeDispatcher{}
	e := New(store, dispatcher, zerolog.Nop(), nil)

	e.Evaluate(context.Background(), "fw-1", sampleAbove(95))

	if len(store.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(store.history))
	}
	if store.history[0].Severity != model.SeverityCritical {
		t.Errorf("unexpected severity: %v", store.history[0].Severity)
	}
	if store.cooldownsSet != 1 {
		t.Errorf("expected cooldown to be set once, got %d", store.cooldownsSet)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(dispatcher.dispatched))
	}
}

func TestEngine_Evaluate_BelowThresholdDoesNotFire(t *testing.T) {
	store := &fakeStore{
		configs: []model.AlertConfig{{
			ID: "cfg-1", MetricType: "cpu", Operator: model.OpGreaterThan,
			ThresholdValue: 80, Severity: model.SeverityCritical, Enabled: true,
		}},
		cooldownActive: map[string]bool{},
	}
	dispatcher := &fakeDispatcher{}
	e := New(store, dispatcher, zerolog.Nop(), nil)

	e.Evaluate(context.Background(), "fw-1", sampleAbove(10))

	if len(store.history) != 0 {
		t.Fatalf("expected no history rows, got %d", len(store.history))
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("expected no dispatch, got %d", len(dispatcher.dispatched))
	}
}

func TestEngine_Evaluate_CooldownSuppresses(t *testing.T) {
	store := &fakeStore{
		configs: []model.AlertConfig{{
			ID: "cfg-1", MetricType: "cpu", Operator: model.OpGreaterThan,
			ThresholdValue: 80, Severity: model.SeverityCritical, Enabled: true,
		}},
		cooldownActive: map[string]bool{"fw-1|cfg-1": true},
	}
	dispatcher := &fakeDispatcher{}
	e := New(store, dispatcher, zerolog.Nop(), nil)

	e.Evaluate(context.Background(), "fw-1", sampleAbove(95))

	if len(store.history) != 1 {
		t.Fatalf("expected a suppressed history row to still be recorded, got %d", len(store.history))
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("expected no dispatch while in cooldown, got %d", len(dispatcher.dispatched))
	}
}

func TestEngine_Evaluate_MaintenanceWindowSuppresses(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{
		configs: []model.AlertConfig{{
			ID: "cfg-1", MetricType: "cpu", Operator: model.OpGreaterThan,
			ThresholdValue: 80, Severity: model.SeverityCritical, Enabled: true,
		}},
		cooldownActive: map[string]bool{},
		windows: []model.MaintenanceWindow{{
			Start: now.Add(-time.Hour), End: now.Add(time.Hour),
		}},
	}
	dispatcher := &fakeDispatcher{}
	e := New(store, dispatcher, zerolog.Nop(), nil)

	e.Evaluate(context.Background(), "fw-1", sampleAbove(95))

	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("expected no dispatch during a maintenance window, got %d", len(dispatcher.dispatched))
	}
}

func TestEngine_Evaluate_DisabledConfigSkipped(t *testing.T) {
	store := &fakeStore{
		configs: []model.AlertConfig{{
			ID: "cfg-1", MetricType: "cpu", Operator: model.OpGreaterThan,
			ThresholdValue: 80, Severity: model.SeverityCritical, Enabled: false,
		}},
	}
	e := New(store, nil, zerolog.Nop(), nil)
	e.Evaluate(context.Background(), "fw-1", sampleAbove(95))
	if len(store.history) != 0 {
		t.Fatalf("expected disabled config not to fire, got %d history rows", len(store.history))
	}
}
