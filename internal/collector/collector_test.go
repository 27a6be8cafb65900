package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panfm/panfm/internal/firewall"
	"github.com/panfm/panfm/internal/model"
)

type fakeStore struct {
	mu            sync.Mutex
	samples       []model.Sample
	devices       []model.Device
	settings      map[string]string
	queued        []model.CollectionRequest
	completedIDs  []int64
	completedErrs []error
	claimDelay    time.Duration
}

func (f *fakeStore) InsertSample(ctx context.Context, sample model.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
	return nil
}
func (f *fakeStore) InsertThreatLogs(ctx context.Context, logs []model.ThreatLog) error { return nil }
func (f *fakeStore) InsertTrafficFlows(ctx context.Context, flows []model.TrafficFlow) error {
	return nil
}
func (f *fakeStore) InsertApplicationSamples(ctx context.Context, samples []model.ApplicationSample) error {
	return nil
}
func (f *fakeStore) InsertConnectedDevices(ctx context.Context, devices []model.ConnectedDevice) error {
	return nil
}
func (f *fakeStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertSchedulerStat(ctx context.Context, stat model.SchedulerStat) error {
	return nil
}
func (f *fakeStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	return f.devices, nil
}
func (f *fakeStore) ClaimQueuedRequests(ctx context.Context, limit int) ([]model.CollectionRequest, error) {
	f.mu.Lock()
	delay := f.claimDelay
	claimed := f.queued
	f.queued = nil
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return claimed, nil
}
func (f *fakeStore) CompleteRequest(ctx context.Context, id int64, failErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedIDs = append(f.completedIDs, id)
	f.completedErrs = append(f.completedErrs, failErr)
	return nil
}
func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.settings[key]
	if !ok {
		return "", errSettingNotFound
	}
	return v, nil
}
func (f *fakeStore) PruneCompletedRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertCategoryBandwidth(ctx context.Context, rows []model.CategoryBandwidth) error {
	return nil
}
func (f *fakeStore) InsertClientBandwidth(ctx context.Context, rows []model.ClientBandwidth) error {
	return nil
}
func (f *fakeStore) TopClients(ctx context.Context, deviceID string, start, end time.Time) (model.TopClients, error) {
	return model.TopClients{}, nil
}
func (f *fakeStore) TopCategories(ctx context.Context, deviceID string, start, end time.Time) (model.TopCategories, error) {
	return model.TopCategories{}, nil
}
func (f *fakeStore) TopApplications(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.TopApplication, error) {
	return nil, nil
}

var errSettingNotFound = errors.New("setting not found")

type fakeClient struct {
	systemInfoErr error
}

func (c *fakeClient) SystemInfo(ctx context.Context) (firewall.SystemInfo, error) {
	if c.systemInfoErr != nil {
		return firewall.SystemInfo{}, c.systemInfoErr
	}
	return firewall.SystemInfo{Hostname: "fw-01", PANOSVersion: "11.1.2"}, nil
}
func (c *fakeClient) Throughput(ctx context.Context) (firewall.Throughput, error) {
	return firewall.Throughput{InboundMbps: 10, OutboundMbps: 20, TotalMbps: 30}, nil
}
func (c *fakeClient) Sessions(ctx context.Context) (firewall.SessionCounts, error) {
	return firewall.SessionCounts{Active: 100}, nil
}
func (c *fakeClient) Resources(ctx context.Context) (firewall.Resources, error) {
	return firewall.Resources{DataPlaneCPUPct: 50}, nil
}
func (c *fakeClient) InterfaceCounters(ctx context.Context) (firewall.InterfaceSet, error) {
	return firewall.InterfaceSet{}, nil
}
func (c *fakeClient) ThreatLogs(ctx context.Context, max int) ([]firewall.LogEntry, error) {
	return nil, nil
}
func (c *fakeClient) SystemLogs(ctx context.Context, max int) ([]firewall.LogEntry, error) {
	return nil, nil
}
func (c *fakeClient) TrafficLogs(ctx context.Context, max int) ([]firewall.LogEntry, error) {
	return nil, nil
}
func (c *fakeClient) ApplicationStats(ctx context.Context, max int) ([]firewall.ApplicationStat, error) {
	return nil, nil
}
func (c *fakeClient) ArpTable(ctx context.Context) ([]firewall.ArpEntry, error) { return nil, nil }
func (c *fakeClient) DhcpLeases(ctx context.Context) ([]firewall.DhcpLease, error) {
	return nil, nil
}
func (c *fakeClient) Licenses(ctx context.Context) ([]firewall.LicenseInfo, error) {
	return nil, nil
}
func (c *fakeClient) SoftwareUpdates(ctx context.Context) ([]firewall.SoftwareUpdate, error) {
	return nil, nil
}
func (c *fakeClient) ContentUpdates(ctx context.Context) ([]firewall.ContentUpdate, error) {
	return nil, nil
}
func (c *fakeClient) TechSupportJobStart(ctx context.Context) (firewall.TechSupportJob, error) {
	return firewall.TechSupportJob{}, nil
}
func (c *fakeClient) TechSupportJobStatus(ctx context.Context, jobID string) (firewall.TechSupportJob, error) {
	return firewall.TechSupportJob{}, nil
}
func (c *fakeClient) TechSupportJobURL(ctx context.Context, jobID string) (string, error) {
	return "", nil
}

type fakeAlertEvaluator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAlertEvaluator) Evaluate(ctx context.Context, deviceID string, sample model.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConcurrentDevices != 8 {
		t.Errorf("MaxConcurrentDevices = %d, want 8", cfg.MaxConcurrentDevices)
	}
	if cfg.ThroughputInterval != 60*time.Second {
		t.Errorf("ThroughputInterval = %v, want 60s", cfg.ThroughputInterval)
	}
}

func TestScheduler_CollectOneDevice_WritesSampleAndEvaluatesAlerts(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{}
	alerts := &fakeAlertEvaluator{}
	s := New(DefaultConfig(), store, func(model.Device) (firewall.Client, error) { return client, nil }, alerts, zerolog.Nop(), nil, nil)

	device := model.Device{ID: "fw-01", Enabled: true}
	if err := s.collectOneDevice(context.Background(), device); err != nil {
		t.Fatalf("collectOneDevice: %v", err)
	}

	if len(store.samples) != 1 {
		t.Fatalf("expected 1 sample written, got %d", len(store.samples))
	}
	if store.samples[0].Hostname != "fw-01" {
		t.Errorf("unexpected sample: %+v", store.samples[0])
	}
	if alerts.calls != 1 {
		t.Errorf("expected alert engine to be evaluated once, got %d", alerts.calls)
	}
}

func TestScheduler_CollectOneDevice_PropagatesOpError(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{systemInfoErr: firewall.ErrTimeout}
	s := New(DefaultConfig(), store, func(model.Device) (firewall.Client, error) { return client, nil }, nil, zerolog.Nop(), nil, nil)

	err := s.collectOneDevice(context.Background(), model.Device{ID: "fw-01"})
	if !errors.Is(err, firewall.ErrTimeout) {
		t.Fatalf("expected ErrTimeout to propagate, got %v", err)
	}
	if len(store.samples) != 0 {
		t.Errorf("expected no sample written on a failed poll, got %d", len(store.samples))
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{firewall.ErrTimeout, "timeout"},
		{firewall.ErrUnreachable, "unreachable"},
		{firewall.ErrAuthFailed, "auth_failed"},
		{firewall.ErrRateLimited, "rate_limited"},
		{firewall.ErrBadResponse, "bad_response"},
		{errors.New("boom"), "unknown"},
	}
	for _, c := range cases {
		if got := classifyError(c.err); got != c.want {
			t.Errorf("classifyError(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestScheduler_ForEachEnabledDevice_SkipsDisabled(t *testing.T) {
	store := &fakeStore{devices: []model.Device{
		{ID: "fw-01", Enabled: true},
		{ID: "fw-02", Enabled: false},
	}}
	s := New(DefaultConfig(), store, nil, nil, zerolog.Nop(), nil, nil)

	var mu sync.Mutex
	var visited []string
	s.forEachEnabledDevice(context.Background(), func(ctx context.Context, d model.Device) {
		mu.Lock()
		defer mu.Unlock()
		visited = append(visited, d.ID)
	})

	if len(visited) != 1 || visited[0] != "fw-01" {
		t.Errorf("expected only fw-01 to be visited, got %v", visited)
	}
}

func TestScheduler_ReloadRefreshInterval_ReschedulesJob(t *testing.T) {
	store := &fakeStore{settings: map[string]string{"refresh_interval_seconds": "15"}}
	cfg := DefaultConfig()
	cfg.ThroughputInterval = 60 * time.Second
	s := New(cfg, store, nil, nil, zerolog.Nop(), nil, nil)

	s.mu.Lock()
	s.jobs = map[string]*job{
		"collect_throughput":        {name: "collect_throughput", ticker: time.NewTicker(time.Hour), resetCh: make(chan time.Duration, 1)},
		"collect_connected_devices": {name: "collect_connected_devices", ticker: time.NewTicker(time.Hour), resetCh: make(chan time.Duration, 1)},
	}
	s.mu.Unlock()

	s.reloadRefreshInterval(context.Background())

	select {
	case got := <-s.jobs["collect_throughput"].resetCh:
		if got != 15*time.Second {
			t.Errorf("reschedule interval = %v, want 15s", got)
		}
	default:
		t.Fatal("expected a pending reschedule after refresh_interval_seconds changed")
	}
	if s.throughputIntervalSec.Load() != 15 {
		t.Errorf("throughputIntervalSec = %d, want 15", s.throughputIntervalSec.Load())
	}
}

func TestScheduler_ReloadRefreshInterval_NoopWhenSettingMissing(t *testing.T) {
	store := &fakeStore{}
	s := New(DefaultConfig(), store, nil, nil, zerolog.Nop(), nil, nil)
	s.reloadRefreshInterval(context.Background())
	if s.throughputIntervalSec.Load() != int64(DefaultConfig().ThroughputInterval.Seconds()) {
		t.Errorf("expected throughputIntervalSec to stay at the default when no setting is stored")
	}
}

func TestScheduler_PollOnDemandRequests_ClaimsAndCompletes(t *testing.T) {
	store := &fakeStore{
		devices: []model.Device{{ID: "fw-01", Enabled: true}},
		queued:  []model.CollectionRequest{{ID: 1, DeviceID: "fw-01", Status: model.RequestRunning}},
	}
	client := &fakeClient{}
	s := New(DefaultConfig(), store, func(model.Device) (firewall.Client, error) { return client, nil }, nil, zerolog.Nop(), nil, nil)

	s.pollOnDemandRequests(context.Background())

	if len(store.completedIDs) != 1 || store.completedIDs[0] != 1 {
		t.Fatalf("expected request 1 to be completed, got %v", store.completedIDs)
	}
	if store.completedErrs[0] != nil {
		t.Errorf("expected a nil completion error, got %v", store.completedErrs[0])
	}
}

func TestScheduler_PollOnDemandRequests_UnknownDeviceFailsRequest(t *testing.T) {
	store := &fakeStore{
		queued: []model.CollectionRequest{{ID: 7, DeviceID: "missing", Status: model.RequestRunning}},
	}
	s := New(DefaultConfig(), store, nil, nil, zerolog.Nop(), nil, nil)

	s.pollOnDemandRequests(context.Background())

	if len(store.completedIDs) != 1 || store.completedIDs[0] != 7 {
		t.Fatalf("expected request 7 to be completed, got %v", store.completedIDs)
	}
	if store.completedErrs[0] == nil {
		t.Error("expected a non-nil completion error for an unknown device")
	}
}

func TestScheduler_ForEachEnabledDevice_RespectsSemaphoreBound(t *testing.T) {
	devices := make([]model.Device, 20)
	for i := range devices {
		devices[i] = model.Device{ID: fmt.Sprintf("fw-%02d", i), Enabled: true}
	}
	store := &fakeStore{devices: devices}
	cfg := DefaultConfig()
	cfg.MaxConcurrentDevices = 3
	s := New(cfg, store, nil, nil, zerolog.Nop(), nil, nil)

	var mu sync.Mutex
	current, max := 0, 0
	s.forEachEnabledDevice(context.Background(), func(ctx context.Context, d model.Device) {
		mu.Lock()
		current++
		if current > max {
			max = current
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
	})

	if max > cfg.MaxConcurrentDevices {
		t.Errorf("observed %d concurrent device jobs, want at most %d", max, cfg.MaxConcurrentDevices)
	}
}

func TestScheduler_Stop_DrainsInFlightJobBeforeReturning(t *testing.T) {
	store := &fakeStore{
		devices:    []model.Device{{ID: "fw-01", Enabled: true}},
		queued:     []model.CollectionRequest{{ID: 1, DeviceID: "fw-01", Status: model.RequestRunning}},
		claimDelay: 100 * time.Millisecond,
	}
	client := &fakeClient{}
	cfg := DefaultConfig()
	cfg.ThroughputInterval = 0
	cfg.ConnectedDevicesInterval = 0
	cfg.TrafficFlowsInterval = 0
	cfg.CleanupInterval = 0
	cfg.HeartbeatInterval = 0
	cfg.OnDemandPollInterval = 10 * time.Millisecond
	s := New(cfg, store, func(model.Device) (firewall.Client, error) { return client, nil }, nil, zerolog.Nop(), nil, nil)

	s.Start(context.Background())
	// Give the on_demand_poll job time to enter ClaimQueuedRequests (and its
	// artificial 100ms delay) before we ask the scheduler to stop.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stopStart := time.Now()
	s.Stop(ctx)
	stopDuration := time.Since(stopStart)

	if stopDuration < 50*time.Millisecond {
		t.Errorf("Stop returned after %v, expected it to block until the in-flight tick finished", stopDuration)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.completedIDs) != 1 {
		t.Errorf("expected the in-flight request to be completed before Stop returned, got %v", store.completedIDs)
	}
}

func TestJob_RunningFlag_CoalescesOverlappingTicks(t *testing.T) {
	j := &job{name: "slow_job"}
	if !j.running.CompareAndSwap(false, true) {
		t.Fatal("expected the first CompareAndSwap to succeed")
	}
	if j.running.CompareAndSwap(false, true) {
		t.Fatal("expected a second CompareAndSwap to fail while the job is still marked running")
	}
	j.running.Store(false)
	if !j.running.CompareAndSwap(false, true) {
		t.Fatal("expected CompareAndSwap to succeed again once running was cleared")
	}
}

func TestScheduler_StartStop_Idempotent(t *testing.T) {
	store := &fakeStore{}
	cfg := DefaultConfig()
	cfg.ThroughputInterval = 0
	cfg.ConnectedDevicesInterval = 0
	cfg.TrafficFlowsInterval = 0
	cfg.CleanupInterval = 0
	cfg.HeartbeatInterval = 0
	cfg.OnDemandPollInterval = 0
	s := New(cfg, store, nil, nil, zerolog.Nop(), nil, nil)

	s.Start(context.Background())
	s.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
