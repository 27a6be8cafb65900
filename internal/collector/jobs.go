package collector

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/panfm/panfm/internal/firewall"
	"github.com/panfm/panfm/internal/model"
	"github.com/panfm/panfm/internal/otelx"
)

// topApplicationsLimit is the §4.4/§4.2 "top-5 by bytes" application list size.
const topApplicationsLimit = 5

// derivedFieldsWindow is the lookback §4.2 step 2b computes top bandwidth
// clients/categories over: the last 60 minutes of already-collected data.
const derivedFieldsWindow = 60 * time.Minute

func errDeviceNotFound(deviceID string) error {
	return fmt.Errorf("collector: device %s not found", deviceID)
}

func processPID() int {
	return os.Getpid()
}

// logEntryInt64 reads a numeric field out of a raw log entry, defaulting to 0
// for missing or malformed values rather than failing the whole row.
func logEntryInt64(e firewall.LogEntry, key string) int64 {
	v, err := strconv.ParseInt(e[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// isPrivateClientIP reports whether ip is an RFC1918/ULA, loopback or
// link-local unicast address, the
// LAN-vs-internet split the top-client and top-category aggregates use.
func isPrivateClientIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

// collectThroughput is the collect_throughput job: one full Sample per
// enabled device (system info, throughput, sessions, resources, interfaces,
// license) and the subsequent Alert Engine evaluation.
func (s *Scheduler) collectThroughput(ctx context.Context) {
	s.forEachEnabledDevice(ctx, func(ctx context.Context, d model.Device) {
		if err := s.collectOneDevice(ctx, d); err != nil {
			s.log.Error().Err(err).Str("device_id", d.ID).Msg("collecting sample")
		}
	})
}

func (s *Scheduler) collectOneDevice(ctx context.Context, d model.Device) error {
	ctx, pollSpan := s.tracer.StartPollSpan(ctx, d.ID, "collect_throughput")
	defer pollSpan.End()

	start := time.Now()
	client, err := s.clients(d)
	if err != nil {
		return fmt.Errorf("building client for device %s: %w", d.ID, err)
	}

	info, err := callOp(s, ctx, d.ID, "system_info", client.SystemInfo)
	if err != nil {
		return err
	}
	throughput, err := callOp(s, ctx, d.ID, "throughput", client.Throughput)
	if err != nil {
		return err
	}
	sessions, err := callOp(s, ctx, d.ID, "sessions", client.Sessions)
	if err != nil {
		return err
	}
	resources, err := callOp(s, ctx, d.ID, "resources", client.Resources)
	if err != nil {
		return err
	}

	sample := model.Sample{
		Time:         time.Now().UTC(),
		DeviceID:     d.ID,
		InboundMbps:  throughput.InboundMbps,
		OutboundMbps: throughput.OutboundMbps,
		TotalMbps:    throughput.TotalMbps,
		InboundPPS:   throughput.InboundPPS,
		OutboundPPS:  throughput.OutboundPPS,
		Sessions: model.Sessions{
			Active: sessions.Active, TCP: sessions.TCP, UDP: sessions.UDP, ICMP: sessions.ICMP,
			Capacity: sessions.Capacity, Utilization: sessions.UtilizationPct,
		},
		CPU:       model.CPU{DataPlaneCPU: resources.DataPlaneCPUPct, ManagementCPU: resources.ManagementCPUPct},
		MemoryPct: resources.MemoryPct,
		DiskUsage: model.DiskUsage{RootPct: resources.DiskRootPct, ConfigPct: resources.DiskConfigPct, LogPct: resources.DiskLogPct},
		Hostname:  info.Hostname, PANOSVersion: info.PANOSVersion, UptimeSeconds: info.UptimeSeconds,
	}

	if licenses, err := callOp(s, ctx, d.ID, "licenses", client.Licenses); err == nil {
		for _, l := range licenses {
			if l.Feature == "" {
				continue
			}
			sample.License.Valid = sample.License.Valid || l.Valid
			sample.License.ExpiryDate = l.ExpiryDate
		}
	}

	if ifaces, err := callOp(s, ctx, d.ID, "interface_counters", client.InterfaceCounters); err == nil {
		for _, iface := range ifaces.Interfaces {
			sample.InterfaceErrors += iface.Errors
		}
	}

	if threats, err := callOp(s, ctx, d.ID, "threat_logs", func(ctx context.Context) ([]firewall.LogEntry, error) {
		return client.ThreatLogs(ctx, s.cfg.LogFetchMax)
	}); err == nil {
		threatRows := make([]model.ThreatLog, 0, len(threats))
		for _, t := range threats {
			severity := model.ThreatSeverity(t["severity"])
			if severity == model.ThreatCritical {
				sample.ThreatsCriticalCount++
			}
			threatRows = append(threatRows, model.ThreatLog{
				Time: sample.Time, DeviceID: d.ID, Severity: severity,
				ThreatName: t["name"], SourceIP: t["src"], DestIP: t["dst"],
			})
		}
		if len(threatRows) > 0 {
			if err := s.store.InsertThreatLogs(ctx, threatRows); err != nil {
				s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting threat logs")
			}
		}
	}

	deriveCtx, deriveSpan := s.tracer.StartStoreSpan(ctx, "ComputeDerivedFields")
	derivedEnd := sample.Time
	derivedStart := derivedEnd.Add(-derivedFieldsWindow)
	if tc, err := s.store.TopClients(deriveCtx, d.ID, derivedStart, derivedEnd); err == nil {
		sample.TopClients = tc
	} else {
		s.log.Error().Err(err).Str("device_id", d.ID).Msg("computing top clients")
	}
	if tcat, err := s.store.TopCategories(deriveCtx, d.ID, derivedStart, derivedEnd); err == nil {
		sample.TopCategories = tcat
	} else {
		s.log.Error().Err(err).Str("device_id", d.ID).Msg("computing top categories")
	}
	if apps, err := s.store.TopApplications(deriveCtx, d.ID, derivedStart, derivedEnd, topApplicationsLimit); err == nil {
		sample.TopApplications = apps
	} else {
		s.log.Error().Err(err).Str("device_id", d.ID).Msg("computing top applications")
	}
	deriveSpan.End()

	storeCtx, storeSpan := s.tracer.StartStoreSpan(ctx, "InsertSample")
	err = s.store.InsertSample(storeCtx, sample)
	storeSpan.End()
	if err != nil {
		return fmt.Errorf("persisting sample device=%s: %w", d.ID, err)
	}
	s.collectionCount++
	if s.metrics != nil {
		s.metrics.SamplesWritten.Inc()
		s.metrics.PollDuration.WithLabelValues(d.ID, "full_poll").Observe(time.Since(start).Seconds())
	}

	if s.alerts != nil {
		s.alerts.Evaluate(ctx, d.ID, sample)
	}
	return nil
}

// callOp wraps one firewall operation in a child span and records poll-error
// metrics on failure, generalized over the op's differing result type.
func callOp[T any](s *Scheduler, ctx context.Context, deviceID, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.StartOpSpan(ctx, deviceID, op)
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		otelx.RecordError(span, err, classifyError(err))
		s.recordPollError(deviceID, op, err)
	}
	return result, err
}

func (s *Scheduler) recordPollError(deviceID, op string, err error) {
	if s.metrics != nil {
		s.metrics.PollErrors.WithLabelValues(deviceID, op, classifyError(err)).Inc()
	}
}

// classifyError maps a firewall sentinel error to the §7 error taxonomy's
// label vocabulary, so Prometheus can break poll failures down by class
// instead of lumping every appliance error under one bucket.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, firewall.ErrTimeout):
		return "timeout"
	case errors.Is(err, firewall.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, firewall.ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, firewall.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, firewall.ErrBadResponse):
		return "bad_response"
	default:
		return "unknown"
	}
}

// collectConnectedDevices is the collect_connected_devices job: snapshots
// the ARP table for every enabled device.
func (s *Scheduler) collectConnectedDevices(ctx context.Context) {
	s.forEachEnabledDevice(ctx, func(ctx context.Context, d model.Device) {
		ctx, span := s.tracer.StartPollSpan(ctx, d.ID, "collect_connected_devices")
		defer span.End()

		client, err := s.clients(d)
		if err != nil {
			s.log.Error().Err(err).Str("device_id", d.ID).Msg("building client for ARP snapshot")
			return
		}
		entries, err := callOp(s, ctx, d.ID, "arp_table", client.ArpTable)
		if err != nil {
			return
		}
		now := time.Now().UTC()
		rows := make([]model.ConnectedDevice, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, model.ConnectedDevice{
				Time: now, DeviceID: d.ID, IP: e.IP, MAC: e.MAC, LastSeen: now,
			})
		}
		storeCtx, storeSpan := s.tracer.StartStoreSpan(ctx, "InsertConnectedDevices")
		err = s.store.InsertConnectedDevices(storeCtx, rows)
		storeSpan.End()
		if err != nil {
			s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting ARP snapshot")
		}
	})
}

// collectTrafficFlows is the collect_traffic_flows job: pulls traffic logs
// and application statistics for every enabled device.
func (s *Scheduler) collectTrafficFlows(ctx context.Context) {
	s.forEachEnabledDevice(ctx, func(ctx context.Context, d model.Device) {
		ctx, span := s.tracer.StartPollSpan(ctx, d.ID, "collect_traffic_flows")
		defer span.End()

		client, err := s.clients(d)
		if err != nil {
			s.log.Error().Err(err).Str("device_id", d.ID).Msg("building client for traffic collection")
			return
		}

		apps, err := callOp(s, ctx, d.ID, "application_stats", func(ctx context.Context) ([]firewall.ApplicationStat, error) {
			return client.ApplicationStats(ctx, s.cfg.LogFetchMax)
		})
		if err == nil {
			now := time.Now().UTC()
			samples := make([]model.ApplicationSample, 0, len(apps))
			categoryAgg := make(map[string]model.CategoryBandwidth, len(apps))
			for _, a := range apps {
				samples = append(samples, model.ApplicationSample{
					Time: now, DeviceID: d.ID, Application: a.Name, Category: a.Category,
					Bytes: a.Bytes, BytesSent: a.BytesSent, BytesReceived: a.BytesReceived,
					Sessions: a.Sessions, TopSource: a.SourceIP,
				})

				// §4.2 step 2b/§9: 'private-ip-addresses' is the LAN category,
				// everything else rolls up under internet, matching the
				// original collector's category classification.
				tt := model.TrafficInternet
				if a.Category == "private-ip-addresses" {
					tt = model.TrafficLAN
				}
				cb := categoryAgg[a.Category]
				cb.Time, cb.DeviceID, cb.Category, cb.TrafficType = now, d.ID, a.Category, tt
				cb.Bytes += a.Bytes
				cb.Sessions += a.Sessions
				cb.BytesSent += a.BytesSent
				cb.BytesReceived += a.BytesReceived
				categoryAgg[a.Category] = cb
			}
			storeCtx, storeSpan := s.tracer.StartStoreSpan(ctx, "InsertApplicationSamples")
			err := s.store.InsertApplicationSamples(storeCtx, samples)
			storeSpan.End()
			if err != nil {
				s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting application samples")
			}

			if len(categoryAgg) > 0 {
				categoryRows := make([]model.CategoryBandwidth, 0, len(categoryAgg))
				for _, cb := range categoryAgg {
					categoryRows = append(categoryRows, cb)
				}
				catCtx, catSpan := s.tracer.StartStoreSpan(ctx, "InsertCategoryBandwidth")
				err := s.store.InsertCategoryBandwidth(catCtx, categoryRows)
				catSpan.End()
				if err != nil {
					s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting category bandwidth")
				}
			}
		}

		logs, err := callOp(s, ctx, d.ID, "traffic_logs", func(ctx context.Context) ([]firewall.LogEntry, error) {
			return client.TrafficLogs(ctx, s.cfg.LogFetchMax)
		})
		if err != nil {
			return
		}
		now := time.Now().UTC()
		windowSeconds := int64(s.cfg.TrafficFlowsInterval.Seconds())
		flows := make([]model.TrafficFlow, 0, len(logs))
		clientAgg := make(map[string]model.ClientBandwidth, len(logs)*2)
		addClient := func(ip string, tt model.TrafficType, bytes, sessions int64) {
			if ip == "" {
				return
			}
			key := ip + "|" + string(tt)
			cb := clientAgg[key]
			cb.Time, cb.DeviceID, cb.ClientIP, cb.TrafficType = now, d.ID, ip, tt
			cb.Bytes += bytes
			cb.Sessions += sessions
			cb.WindowSeconds = windowSeconds
			clientAgg[key] = cb
		}
		for _, l := range logs {
			f := model.TrafficFlow{
				Time: now, DeviceID: d.ID,
				SourceIP: l["src"], DestIP: l["dst"], DestPort: int32(logEntryInt64(l, "dport")),
				Application: l["app"], Category: l["category"], Protocol: l["proto"],
				BytesTotal: logEntryInt64(l, "bytes"), BytesSent: logEntryInt64(l, "bytes_sent"),
				BytesReceived: logEntryInt64(l, "bytes_received"), Sessions: logEntryInt64(l, "sessions"),
				FromZone: l["from"], ToZone: l["to"],
			}
			flows = append(flows, f)

			// §4.2 step 2b: a flow is internal-only when both endpoints are
			// private, internet-bound when exactly one is; an internal
			// endpoint is always counted toward the overall/total view too.
			srcPrivate, dstPrivate := isPrivateClientIP(f.SourceIP), isPrivateClientIP(f.DestIP)
			switch {
			case srcPrivate && dstPrivate:
				addClient(f.SourceIP, model.TrafficLAN, f.BytesTotal, f.Sessions)
				addClient(f.DestIP, model.TrafficLAN, f.BytesTotal, f.Sessions)
				addClient(f.SourceIP, model.TrafficTotal, f.BytesTotal, f.Sessions)
				addClient(f.DestIP, model.TrafficTotal, f.BytesTotal, f.Sessions)
			case srcPrivate:
				addClient(f.SourceIP, model.TrafficInternet, f.BytesTotal, f.Sessions)
				addClient(f.SourceIP, model.TrafficTotal, f.BytesTotal, f.Sessions)
			case dstPrivate:
				addClient(f.DestIP, model.TrafficInternet, f.BytesTotal, f.Sessions)
				addClient(f.DestIP, model.TrafficTotal, f.BytesTotal, f.Sessions)
			}
		}
		storeCtx, storeSpan := s.tracer.StartStoreSpan(ctx, "InsertTrafficFlows")
		err = s.store.InsertTrafficFlows(storeCtx, flows)
		storeSpan.End()
		if err != nil {
			s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting traffic flows")
		}

		if len(clientAgg) > 0 {
			clientRows := make([]model.ClientBandwidth, 0, len(clientAgg))
			for _, cb := range clientAgg {
				clientRows = append(clientRows, cb)
			}
			clientCtx, clientSpan := s.tracer.StartStoreSpan(ctx, "InsertClientBandwidth")
			err := s.store.InsertClientBandwidth(clientCtx, clientRows)
			clientSpan.End()
			if err != nil {
				s.log.Error().Err(err).Str("device_id", d.ID).Msg("persisting client bandwidth")
			}
		}
	})
}

// databaseCleanup is the database_cleanup job: purges samples and logs older
// than RetentionTTL, grounded on the pack's "tickers replace pg_cron"
// maintenance idiom. It also prunes completed/failed collection_requests
// rows older than an hour in the same tick (§4.2).
func (s *Scheduler) databaseCleanup(ctx context.Context) {
	if s.cfg.RetentionTTL > 0 {
		cutoff := time.Now().UTC().Add(-s.cfg.RetentionTTL)
		deleted, err := s.store.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			s.log.Error().Err(err).Msg("database cleanup")
		} else if deleted > 0 {
			s.log.Info().Int64("rows_deleted", deleted).Time("cutoff", cutoff).Msg("database cleanup complete")
		}
	}

	requestCutoff := time.Now().UTC().Add(-time.Hour)
	pruned, err := s.store.PruneCompletedRequests(ctx, requestCutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("pruning completed collection requests")
		return
	}
	if pruned > 0 {
		s.log.Info().Int64("rows_deleted", pruned).Msg("pruned stale collection requests")
	}
}
