// Package apiserver is PANfm's northbound JSON API (§6): read-mostly
// endpoints backed directly by Store methods, a small set of state-changing
// endpoints gated behind an API key, health/readiness, and /metrics. Router
// and middleware chain are grounded on the pack's chi-based HTTP server
// (CrlsMrls-dummybox's server.New), generalized from its host-introspection
// routes to PANfm's device/sample/alert/notification routes.
package apiserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/panfm/panfm/internal/devicecrypto"
	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/notify"
	"github.com/panfm/panfm/internal/obsmetrics"
	"github.com/panfm/panfm/internal/otelx"
)

// Store is the subset of the Time-Series Store the API server reads and
// writes.
type Store interface {
	ListDevices(ctx context.Context) ([]model.Device, error)
	GetDevice(ctx context.Context, id string) (model.Device, error)
	UpsertDevice(ctx context.Context, d model.Device) error
	DeleteDevice(ctx context.Context, id string) error
	ConnectedDevices(ctx context.Context, deviceID string, tags []string, mode model.TagFilterMode) ([]model.ConnectedDevice, error)
	UpsertDeviceMetadata(ctx context.Context, m model.DeviceMetadata) error

	QuerySamples(ctx context.Context, deviceID string, start, end time.Time, res model.Resolution) ([]model.Sample, error)
	LatestSample(ctx context.Context, deviceID string) (model.Sample, error)
	ClearDeviceData(ctx context.Context, deviceID string) error
	ClearAllData(ctx context.Context) error

	TopCategories(ctx context.Context, deviceID string, start, end time.Time) (model.TopCategories, error)
	TopClients(ctx context.Context, deviceID string, start, end time.Time) (model.TopClients, error)
	TopApplications(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.TopApplication, error)

	ThreatLogs(ctx context.Context, deviceID string, limit int) ([]model.ThreatLog, error)
	TrafficFlowsForClient(ctx context.Context, deviceID, clientIP string, limit int) ([]model.TrafficFlow, error)

	ListAlertConfigs(ctx context.Context) ([]model.AlertConfig, error)
	UpsertAlertConfig(ctx context.Context, c model.AlertConfig) (model.AlertConfig, error)
	AlertHistoryFor(ctx context.Context, deviceID string, limit int) ([]model.AlertHistory, error)

	ListNotificationChannels(ctx context.Context) ([]model.NotificationChannel, error)
	UpsertNotificationChannel(ctx context.Context, c model.NotificationChannel) (model.NotificationChannel, error)
	DeleteNotificationChannel(ctx context.Context, id string) error

	EnqueueCollectionRequest(ctx context.Context, deviceID string) (model.CollectionRequest, error)
	RequestStatus(ctx context.Context, id int64) (model.CollectionRequest, error)
	LatestSchedulerStat(ctx context.Context) (model.SchedulerStat, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Ready(ctx context.Context) bool
}

// Dispatcher is the subset of the Notification Dispatcher the channel-test
// endpoint invokes.
type Dispatcher interface {
	Test(ctx context.Context, channelID string) notify.Result
}

// Config controls listen address, auth, and cache lifetimes.
type Config struct {
	Addr           string
	APIKey         string
	MetricsPath    string
	DeviceCacheTTL time.Duration
	FlowCacheTTL   time.Duration
}

// DefaultConfig returns the §6 cache-lifetime defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8443",
		MetricsPath:    "/metrics",
		DeviceCacheTTL: 30 * time.Second,
		FlowCacheTTL:   60 * time.Second,
	}
}

// Server is PANfm's northbound API server.
type Server struct {
	cfg        Config
	store      Store
	dispatcher Dispatcher
	cipher     *devicecrypto.Cipher
	metrics    *obsmetrics.Metrics
	tracer     *otelx.Tracer
	log        zerolog.Logger

	router     *chi.Mux
	httpServer *http.Server

	deviceCache *ttlCache[[]model.Device]
	flowCache   *ttlCache[[]model.TrafficFlow]

	startedAt time.Time
}

// New builds a Server and wires its full route table. cipher may be nil in
// deployments/tests that never exercise device API key CRUD. tracer may be
// nil, in which case a no-op tracer is used.
func New(cfg Config, store Store, dispatcher Dispatcher, cipher *devicecrypto.Cipher, metricsReg prometheus.Registerer, m *obsmetrics.Metrics, tracer *otelx.Tracer, logger zerolog.Logger) *Server {
	if tracer == nil {
		tracer = otelx.NoopTracer()
	}
	s := &Server{
		cfg:         cfg,
		store:       store,
		dispatcher:  dispatcher,
		cipher:      cipher,
		metrics:     m,
		tracer:      tracer,
		log:         logger.With().Str("component", "apiserver").Logger(),
		deviceCache: newTTLCache[[]model.Device](cfg.DeviceCacheTTL),
		flowCache:   newTTLCache[[]model.TrafficFlow](cfg.FlowCacheTTL),
		startedAt:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(
		hlog.NewHandler(logger),
		middleware.RequestID,
		correlationIDMiddleware,
		otelx.Middleware(tracer),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("status", status).
				Dur("duration", duration).
				Msg("request")
		}),
		hlog.RemoteAddrHandler("ip"),
		hlog.UserAgentHandler("user_agent"),
		s.metricsMiddleware,
		middleware.Recoverer,
	)

	r.Get("/health", s.handleHealth)
	if metricsReg != nil {
		if reg, ok := metricsReg.(prometheus.Gatherer); ok {
			path := cfg.MetricsPath
			if path == "" {
				path = "/metrics"
			}
			r.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/services/status", s.handleServicesStatus)

		api.Route("/devices", func(dr chi.Router) {
			dr.Get("/", s.handleListDevices)
			dr.With(apiKeyMiddleware(cfg.APIKey)).Post("/", s.handleCreateDevice)
			dr.Route("/{deviceID}", func(d chi.Router) {
				d.Get("/", s.handleGetDevice)
				d.With(apiKeyMiddleware(cfg.APIKey)).Put("/", s.handleUpdateDevice)
				d.With(apiKeyMiddleware(cfg.APIKey)).Delete("/", s.handleDeleteDevice)
				d.Get("/throughput", s.handleThroughputHistory)
				d.Get("/throughput/latest", s.handleThroughputLatest)
				d.Get("/top-categories", s.handleTopCategories)
				d.Get("/top-clients", s.handleTopClients)
				d.Get("/top-applications", s.handleTopApplications)
				d.Get("/connected-devices", s.handleConnectedDevices)
				d.With(apiKeyMiddleware(cfg.APIKey)).Post("/metadata", s.handleUpsertDeviceMetadata)
				d.Get("/threat-logs", s.handleThreatLogs)
				d.Get("/traffic-flows", s.handleTrafficFlows)
				d.With(apiKeyMiddleware(cfg.APIKey)).Post("/collect", s.handleCollectNow)
				d.With(apiKeyMiddleware(cfg.APIKey)).Post("/clear-data", s.handleClearDeviceData)
			})
		})

		api.Get("/requests/{requestID}", s.handleRequestStatus)

		api.Route("/alert-configs", func(ar chi.Router) {
			ar.Get("/", s.handleListAlertConfigs)
			ar.With(apiKeyMiddleware(cfg.APIKey)).Post("/", s.handleUpsertAlertConfig)
		})
		api.Get("/alert-history", s.handleAlertHistory)

		api.Route("/notification-channels", func(nr chi.Router) {
			nr.Get("/", s.handleListChannels)
			nr.With(apiKeyMiddleware(cfg.APIKey)).Post("/", s.handleUpsertChannel)
			nr.With(apiKeyMiddleware(cfg.APIKey)).Delete("/{channelID}", s.handleDeleteChannel)
			nr.With(apiKeyMiddleware(cfg.APIKey)).Post("/{channelID}/test", s.handleTestChannel)
		})

		api.With(apiKeyMiddleware(cfg.APIKey)).Post("/admin/clear-database", s.handleClearAllData)

		api.Route("/settings", func(sr chi.Router) {
			sr.Get("/{key}", s.handleGetSetting)
			sr.With(apiKeyMiddleware(cfg.APIKey)).Put("/{key}", s.handleSetSetting)
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in the background. It returns once the listener is
// bound; callers should call Shutdown on signal to drain in flight requests.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("apiserver: binding %s: %w", s.cfg.Addr, err)
	}
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("api server listening")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server stopped unexpectedly")
		}
	}()
	return nil
}

// Shutdown drains in-flight requests, bounded by ctx's deadline (the 30s
// graceful-shutdown window the process entrypoint sets).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
