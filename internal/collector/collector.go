// Package collector is the Scheduler: it owns the background jobs that poll
// devices, persist the results, sweep retention, and service the on-demand
// collection-request queue (§4.2). Its goroutine lifecycle is grounded on the
// ticker/stopCh/mutex pattern the teacher's retention.Manager and
// scheduler.HeartbeatMonitor both use.
package collector

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/panfm/panfm/internal/firewall"
	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/obsmetrics"
	"github.com/panfm/panfm/internal/otelx"
)

const settingRefreshIntervalSeconds = "refresh_interval_seconds"

// Store is the subset of the Time-Series Store the Scheduler writes to.
type Store interface {
	InsertSample(ctx context.Context, sample model.Sample) error
	InsertThreatLogs(ctx context.Context, logs []model.ThreatLog) error
	InsertTrafficFlows(ctx context.Context, flows []model.TrafficFlow) error
	InsertApplicationSamples(ctx context.Context, samples []model.ApplicationSample) error
	InsertConnectedDevices(ctx context.Context, devices []model.ConnectedDevice) error
	InsertCategoryBandwidth(ctx context.Context, rows []model.CategoryBandwidth) error
	InsertClientBandwidth(ctx context.Context, rows []model.ClientBandwidth) error
	TopClients(ctx context.Context, deviceID string, start, end time.Time) (model.TopClients, error)
	TopCategories(ctx context.Context, deviceID string, start, end time.Time) (model.TopCategories, error)
	TopApplications(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]model.TopApplication, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	InsertSchedulerStat(ctx context.Context, stat model.SchedulerStat) error
	ListDevices(ctx context.Context) ([]model.Device, error)
	ClaimQueuedRequests(ctx context.Context, limit int) ([]model.CollectionRequest, error)
	CompleteRequest(ctx context.Context, id int64, failErr error) error
	GetSetting(ctx context.Context, key string) (string, error)
	PruneCompletedRequests(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClientFactory builds a firewall.Client for a device, decrypting its stored
// API key. Kept as a function so tests can substitute a fake client without a
// real crypto dependency.
type ClientFactory func(model.Device) (firewall.Client, error)

// AlertEvaluator is the subset of the Alert Engine the collector drives after
// every successful poll.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, deviceID string, sample model.Sample)
}

// Config controls job intervals and concurrency. Zero duration disables a job.
type Config struct {
	ThroughputInterval       time.Duration
	ConnectedDevicesInterval time.Duration
	TrafficFlowsInterval     time.Duration
	CleanupInterval          time.Duration
	HeartbeatInterval        time.Duration
	OnDemandPollInterval     time.Duration
	RetentionTTL             time.Duration
	MaxConcurrentDevices     int
	LogFetchMax              int
}

// DefaultConfig returns the §4.2 job-schedule defaults.
func DefaultConfig() Config {
	return Config{
		ThroughputInterval:       60 * time.Second,
		ConnectedDevicesInterval: 60 * time.Second,
		TrafficFlowsInterval:     60 * time.Second,
		CleanupInterval:          24 * time.Hour,
		HeartbeatInterval:        60 * time.Second,
		OnDemandPollInterval:     5 * time.Second,
		RetentionTTL:             90 * 24 * time.Hour,
		MaxConcurrentDevices:     8,
		LogFetchMax:              200,
	}
}

// job is one named scheduler task: a ticker, a function, and independent
// start/stop state, mirroring retention.Manager's single-task shape
// generalized to N tasks. resetCh carries a live interval change from
// reschedule without tearing down the job's goroutine (§4.2 dynamic
// reconfiguration).
type job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	ticker   *time.Ticker
	resetCh  chan time.Duration
	running  atomic.Bool
}

// Scheduler runs the 6 named collection/maintenance jobs until Stop is
// called. Safe for concurrent Start/Stop; idempotent on repeated calls.
type Scheduler struct {
	cfg     Config
	store   Store
	clients ClientFactory
	alerts  AlertEvaluator
	log     zerolog.Logger
	metrics *obsmetrics.Metrics
	tracer  *otelx.Tracer

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	sem       chan struct{}
	jobs      map[string]*job

	collectionCount int64

	// throughputIntervalSec mirrors cfg.ThroughputInterval but is updated
	// atomically by persistSchedulerStats when the settings table's
	// refresh_interval_seconds changes, so readers never race the
	// heartbeat goroutine's writes.
	throughputIntervalSec atomic.Int64
}

// New builds a Scheduler. alerts may be nil if alerting is disabled. tracer
// may be nil, in which case a no-op tracer is used.
func New(cfg Config, store Store, clients ClientFactory, alerts AlertEvaluator, logger zerolog.Logger, metrics *obsmetrics.Metrics, tracer *otelx.Tracer) *Scheduler {
	if tracer == nil {
		tracer = otelx.NoopTracer()
	}
	s := &Scheduler{
		cfg:     cfg,
		store:   store,
		clients: clients,
		alerts:  alerts,
		log:     logger.With().Str("component", "scheduler").Logger(),
		metrics: metrics,
		tracer:  tracer,
		sem:     make(chan struct{}, maxInt(cfg.MaxConcurrentDevices, 1)),
	}
	s.throughputIntervalSec.Store(int64(cfg.ThroughputInterval.Seconds()))
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Start launches every configured job's goroutine. No-op if already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	s.jobs = make(map[string]*job)

	jobs := s.buildJobs()
	var wg sync.WaitGroup
	for _, j := range jobs {
		if j.interval <= 0 {
			continue
		}
		j := j
		j.ticker = time.NewTicker(j.interval)
		j.resetCh = make(chan time.Duration, 1)
		s.jobs[j.name] = &j
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(ctx, &j)
		}()
	}

	go func() {
		wg.Wait()
		close(s.stoppedCh)
	}()
}

// Stop signals every job goroutine and waits for them to exit, up to the
// caller's context deadline (the 30s graceful-shutdown drain in the process
// entrypoint).
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	stoppedCh := s.stoppedCh
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-stoppedCh:
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler shutdown drain timed out")
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer j.ticker.Stop()
	for {
		select {
		case <-j.ticker.C:
			if !j.running.CompareAndSwap(false, true) {
				s.log.Warn().Str("job", j.name).Msg("misfire: previous run still in progress, skipping tick")
				continue
			}
			start := time.Now()
			j.fn(ctx)
			j.running.Store(false)
			if s.metrics != nil {
				s.metrics.SchedulerJobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
			}
		case newInterval := <-j.resetCh:
			j.ticker.Reset(newInterval)
			s.log.Info().Str("job", j.name).Dur("interval", newInterval).Msg("job rescheduled")
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reschedule asks the named job's goroutine to reset its ticker to interval,
// without stopping the scheduler or the other jobs. A pending reset is
// dropped (not queued) if the job hasn't consumed the previous one yet.
func (s *Scheduler) reschedule(name string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case j.resetCh <- interval:
	default:
	}
}

func (s *Scheduler) buildJobs() []job {
	return []job{
		{name: "collect_throughput", interval: s.cfg.ThroughputInterval, fn: s.collectThroughput},
		{name: "collect_connected_devices", interval: s.cfg.ConnectedDevicesInterval, fn: s.collectConnectedDevices},
		{name: "collect_traffic_flows", interval: s.cfg.TrafficFlowsInterval, fn: s.collectTrafficFlows},
		{name: "database_cleanup", interval: s.cfg.CleanupInterval, fn: s.databaseCleanup},
		{name: "persist_scheduler_stats", interval: s.cfg.HeartbeatInterval, fn: s.persistSchedulerStats},
		{name: "on_demand_poll", interval: s.cfg.OnDemandPollInterval, fn: s.pollOnDemandRequests},
	}
}

// forEachEnabledDevice fans out fn across every enabled device, bounded by
// the semaphore sized MaxConcurrentDevices.
func (s *Scheduler) forEachEnabledDevice(ctx context.Context, fn func(ctx context.Context, d model.Device)) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing devices for collection")
		return
	}

	var wg sync.WaitGroup
	for _, d := range devices {
		if !d.Enabled {
			continue
		}
		d := d
		s.sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			fn(ctx, d)
		}()
	}
	wg.Wait()
}

// persistSchedulerStats records one heartbeat row, including the scheduler
// process's own CPU/memory footprint via gopsutil — the same host-metrics
// library the teacher used for worker-side process monitoring, repurposed
// here to watch the scheduler instead of a load-test agent.
func (s *Scheduler) persistSchedulerStats(ctx context.Context) {
	devices, err := s.store.ListDevices(ctx)
	enabled, failed := 0, 0
	if err == nil {
		for _, d := range devices {
			if d.Enabled {
				enabled++
			}
		}
	}
	if s.metrics != nil {
		s.metrics.DevicesEnabled.Set(float64(enabled))
	}

	var cpuPct float64
	var memBytes int64
	if proc, err := process.NewProcess(int32(processPID())); err == nil {
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			cpuPct = pct
		}
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			memBytes = int64(info.RSS)
		}
	}

	stat := model.SchedulerStat{
		Time:                   time.Now().UTC(),
		CollectionCount:        s.collectionCount,
		DevicesEnabled:         enabled,
		DevicesFailed:          failed,
		ProcessCPUPct:          cpuPct,
		ProcessMemBytes:        memBytes,
		RefreshIntervalSeconds: int(s.throughputIntervalSec.Load()),
	}
	if err := s.store.InsertSchedulerStat(ctx, stat); err != nil {
		s.log.Error().Err(err).Msg("persisting scheduler stat")
	}

	s.reloadRefreshInterval(ctx)
}

// reloadRefreshInterval implements §4.2's dynamic reconfiguration: the
// heartbeat tick re-reads refresh_interval_seconds from the settings table
// and, if it changed, reschedules the throughput and connected-devices jobs
// in place, without restarting the scheduler.
func (s *Scheduler) reloadRefreshInterval(ctx context.Context) {
	raw, err := s.store.GetSetting(ctx, settingRefreshIntervalSeconds)
	if err != nil {
		return
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		s.log.Warn().Str("value", raw).Msg("ignoring invalid refresh_interval_seconds setting")
		return
	}
	if int64(secs) == s.throughputIntervalSec.Load() {
		return
	}
	newInterval := time.Duration(secs) * time.Second
	s.throughputIntervalSec.Store(int64(secs))
	s.reschedule("collect_throughput", newInterval)
	s.reschedule("collect_connected_devices", newInterval)
}

// pollOnDemandRequests services the collection_requests IPC queue every
// OnDemandPollInterval, per §4.2's 5-second on-demand poll contract.
func (s *Scheduler) pollOnDemandRequests(ctx context.Context) {
	reqs, err := s.store.ClaimQueuedRequests(ctx, s.cfg.MaxConcurrentDevices)
	if err != nil {
		s.log.Error().Err(err).Msg("claiming queued collection requests")
		return
	}
	for _, r := range reqs {
		devices, err := s.store.ListDevices(ctx)
		if err != nil {
			s.store.CompleteRequest(ctx, r.ID, err)
			continue
		}
		var device model.Device
		found := false
		for _, d := range devices {
			if d.ID == r.DeviceID {
				device, found = d, true
				break
			}
		}
		if !found {
			s.store.CompleteRequest(ctx, r.ID, errDeviceNotFound(r.DeviceID))
			continue
		}
		err = s.collectOneDevice(ctx, device)
		s.store.CompleteRequest(ctx, r.ID, err)
	}
}
