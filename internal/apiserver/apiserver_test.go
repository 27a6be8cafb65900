package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/notify"
)

type fakeStore struct {
	devices       map[string]model.Device
	ready         bool
	alertConfigs  []model.AlertConfig
	channels      map[string]model.NotificationChannel
	latestSample  *model.Sample
	schedulerStat *model.SchedulerStat
	settings      map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:  map[string]model.Device{},
		channels: map[string]model.NotificationChannel{},
		settings: map[string]string{},
		ready:    true,
	}
}

func (f *fakeStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	out := make([]model.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}
func (f *fakeStore) GetDevice(ctx context.Context, id string) (model.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return model.Device{}, errNotFound
	}
	return d, nil
}
func (f *fakeStore) UpsertDevice(ctx context.Context, d model.Device) error {
	f.devices[d.ID] = d
	return nil
}
func (f *fakeStore) DeleteDevice(ctx context.Context, id string) error {
	delete(f.devices, id)
	return nil
}
func (f *fakeStore) ConnectedDevices(ctx context.Context, deviceID string, tags []string, mode model.TagFilterMode) ([]model.ConnectedDevice, error) {
	return nil, nil
}
func (f *fakeStore) UpsertDeviceMetadata(ctx context.Context, m model.DeviceMetadata) error {
	return nil
}
func (f *fakeStore) QuerySamples(ctx context.Context, deviceID string, start, end time.Time, res model.Resolution) ([]model.Sample, error) {
	return nil, nil
}
func (f *fakeStore) LatestSample(ctx context.Context, deviceID string) (model.Sample, error) {
	if f.latestSample == nil {
		return model.Sample{}, errNotFound
	}
	return *f.latestSample, nil
}
func (f *fakeStore) ClearDeviceData(ctx context.Context, deviceID string) error { return nil }
func (f *fakeStore) ClearAllData(ctx context.Context) error                     { return nil }
func (f *fakeStore) TopCategories(ctx context.Context, deviceID string, start, end time.Time) (model.TopCategories, error) {
	return model.TopCategories{}, nil
}
func (f *fakeStore) TopClients(ctx context.Context, deviceID string, start, end time.Time) (model.TopClients, error) {
	return model.TopClients{}, nil
}
func (f *fakeStore) TopApplications(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.TopApplication, error) {
	return nil, nil
}
func (f *fakeStore) ThreatLogs(ctx context.Context, deviceID string, limit int) ([]model.ThreatLog, error) {
	return nil, nil
}
func (f *fakeStore) TrafficFlowsForClient(ctx context.Context, deviceID, clientIP string, limit int) ([]model.TrafficFlow, error) {
	return nil, nil
}
func (f *fakeStore) ListAlertConfigs(ctx context.Context) ([]model.AlertConfig, error) {
	return f.alertConfigs, nil
}
func (f *fakeStore) UpsertAlertConfig(ctx context.Context, c model.AlertConfig) (model.AlertConfig, error) {
	f.alertConfigs = append(f.alertConfigs, c)
	return c, nil
}
func (f *fakeStore) AlertHistoryFor(ctx context.Context, deviceID string, limit int) ([]model.AlertHistory, error) {
	return nil, nil
}
func (f *fakeStore) ListNotificationChannels(ctx context.Context) ([]model.NotificationChannel, error) {
	out := make([]model.NotificationChannel, 0, len(f.channels))
	for _, c := range f.channels {
		out = append(out, c)
	}
	return out, nil
}
func (f *fakeStore) UpsertNotificationChannel(ctx context.Context, c model.NotificationChannel) (model.NotificationChannel, error) {
	f.channels[c.ID] = c
	return c, nil
}
func (f *fakeStore) DeleteNotificationChannel(ctx context.Context, id string) error {
	delete(f.channels, id)
	return nil
}
func (f *fakeStore) EnqueueCollectionRequest(ctx context.Context, deviceID string) (model.CollectionRequest, error) {
	return model.CollectionRequest{ID: 1, DeviceID: deviceID, Status: model.RequestQueued}, nil
}
func (f *fakeStore) RequestStatus(ctx context.Context, id int64) (model.CollectionRequest, error) {
	return model.CollectionRequest{}, nil
}
func (f *fakeStore) LatestSchedulerStat(ctx context.Context) (model.SchedulerStat, error) {
	if f.schedulerStat == nil {
		return model.SchedulerStat{}, errNotFound
	}
	return *f.schedulerStat, nil
}
func (f *fakeStore) GetSetting(ctx context.Context, key string) (string, error) {
	v, ok := f.settings[key]
	if !ok {
		return "", errNotFound
	}
	return v, nil
}
func (f *fakeStore) SetSetting(ctx context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}
func (f *fakeStore) Ready(ctx context.Context) bool { return f.ready }

type notFoundError struct{}

func (e *notFoundError) Error() string { return "not found" }

var errNotFound = &notFoundError{}

type fakeDispatcher struct{}

func (fakeDispatcher) Test(ctx context.Context, channelID string) notify.Result {
	return notify.Result{Enabled: true, Sent: true}
}

func newTestServer(store *fakeStore) *Server {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	return New(cfg, store, fakeDispatcher{}, nil, nil, nil, nil, zerolog.Nop())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func TestHandleHealth_NotReady(t *testing.T) {
	store := newFakeStore()
	store.ready = false
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "5" {
		t.Errorf("Retry-After = %q, want 5", rec.Header().Get("Retry-After"))
	}
}

func TestHandleHealth_Ready(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleListDevices(t *testing.T) {
	store := newFakeStore()
	store.devices["fw-01"] = model.Device{ID: "fw-01", Name: "fw-01"}
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "success" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleCreateDevice_RequiresAPIKey(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	payload := `{"name":"fw-02","management_endpoint":"10.0.0.1","api_key":"secret","enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/devices/", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without an api key", rec.Code)
	}
}

func TestHandleCreateDevice_WithAPIKeyRequiresCipher(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	payload := `{"name":"fw-02","management_endpoint":"10.0.0.1","api_key":"secret","enabled":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/devices/", strings.NewReader(payload))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 since no cipher is configured", rec.Code)
	}
}

func TestHandleGetDevice_NotFound(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/missing/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleThroughputLatest_NoSamples(t *testing.T) {
	store := newFakeStore()
	store.devices["fw-01"] = model.Device{ID: "fw-01"}
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/devices/fw-01/throughput/latest", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["sample"] != nil {
		t.Errorf("expected a nil sample, got %v", body["sample"])
	}
}

func TestHandleUpsertAlertConfig_ValidatesRequiredFields(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/api/alert-configs/", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTestChannel_NoDispatcherConfigured(t *testing.T) {
	store := newFakeStore()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	s := New(cfg, store, nil, nil, nil, nil, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/notification-channels/chan-1/test", nil)
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleGetSetting_NotFound(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/refresh_interval_seconds", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSetSetting_RequiresAPIKey(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPut, "/api/settings/refresh_interval_seconds", strings.NewReader(`{"value":"30"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without an api key", rec.Code)
	}
}

func TestHandleSetSetting_ThenGetRoundTrips(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store)

	putReq := httptest.NewRequest(http.MethodPut, "/api/settings/refresh_interval_seconds", strings.NewReader(`{"value":"30"}`))
	putReq.Header.Set("X-API-Key", "test-key")
	putRec := httptest.NewRecorder()
	s.router.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", putRec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/settings/refresh_interval_seconds", nil)
	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getRec.Code)
	}
	var body map[string]any
	decodeBody(t, getRec, &body)
	if body["value"] != "30" {
		t.Errorf("value = %v, want 30", body["value"])
	}
}

func TestDeviceCache_SecondListServesFromCache(t *testing.T) {
	store := newFakeStore()
	store.devices["fw-01"] = model.Device{ID: "fw-01"}
	s := newTestServer(store)

	req1 := httptest.NewRequest(http.MethodGet, "/api/devices/", nil)
	rec1 := httptest.NewRecorder()
	s.router.ServeHTTP(rec1, req1)

	delete(store.devices, "fw-01")

	req2 := httptest.NewRequest(http.MethodGet, "/api/devices/", nil)
	rec2 := httptest.NewRecorder()
	s.router.ServeHTTP(rec2, req2)

	var body map[string]any
	decodeBody(t, rec2, &body)
	devices, ok := body["devices"].([]any)
	if !ok || len(devices) != 1 {
		t.Fatalf("expected cached device list to still report 1 device, got %v", body["devices"])
	}
}
