package firewall

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// Each method below builds the op-command XML for one appliance capability,
// issues it through doOp, and decodes the <result> payload into the typed
// result. Field names intentionally mirror the subset of PAN-OS "show"
// command output this system actually consumes — an opaque wire format by
// design (§1).

func (c *httpClient) SystemInfo(ctx context.Context) (SystemInfo, error) {
	body, err := c.doOp(ctx, "SystemInfo", "<show><system><info></info></system></show>", c.cfg.ReadTimeout)
	if err != nil {
		return SystemInfo{}, err
	}
	env, err := decodeEnvelope(body, "SystemInfo", c.cfg.Endpoint)
	if err != nil {
		return SystemInfo{}, err
	}
	// env.Result.Inner is the <system> element itself, so its children are
	// decoded directly.
	var payload struct {
		Hostname  string `xml:"hostname"`
		SWVersion string `xml:"sw-version"`
		Uptime    string `xml:"uptime"`
		Serial    string `xml:"serial"`
	}
	if err := xml.Unmarshal(env.Result.Inner, &payload); err != nil {
		return SystemInfo{}, newOpError("SystemInfo", c.cfg.Endpoint, ErrBadResponse)
	}
	return SystemInfo{
		Hostname:      payload.Hostname,
		PANOSVersion:  payload.SWVersion,
		UptimeSeconds: parseUptime(payload.Uptime),
		SerialNumber:  payload.Serial,
	}, nil
}

func (c *httpClient) Throughput(ctx context.Context) (Throughput, error) {
	body, err := c.doOp(ctx, "Throughput", "<show><counter><interface>all</interface></counter></show>", c.cfg.ReadTimeout)
	if err != nil {
		return Throughput{}, err
	}
	env, err := decodeEnvelope(body, "Throughput", c.cfg.Endpoint)
	if err != nil {
		return Throughput{}, err
	}
	var payload struct {
		InMbps  float64 `xml:"ifnet>entry>ibytes"`
		OutMbps float64 `xml:"ifnet>entry>obytes"`
		InPPS   float64 `xml:"ifnet>entry>ipackets"`
		OutPPS  float64 `xml:"ifnet>entry>opackets"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	return Throughput{
		InboundMbps:  payload.InMbps,
		OutboundMbps: payload.OutMbps,
		TotalMbps:    payload.InMbps + payload.OutMbps,
		InboundPPS:   payload.InPPS,
		OutboundPPS:  payload.OutPPS,
	}, nil
}

func (c *httpClient) Sessions(ctx context.Context) (SessionCounts, error) {
	body, err := c.doOp(ctx, "Sessions", "<show><session><info></info></session></show>", c.cfg.ReadTimeout)
	if err != nil {
		return SessionCounts{}, err
	}
	env, err := decodeEnvelope(body, "Sessions", c.cfg.Endpoint)
	if err != nil {
		return SessionCounts{}, err
	}
	var payload struct {
		NumActive int64 `xml:"num-active"`
		NumTCP    int64 `xml:"num-tcp"`
		NumUDP    int64 `xml:"num-udp"`
		NumICMP   int64 `xml:"num-icmp"`
		NumMax    int64 `xml:"num-max"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	var util float64
	if payload.NumMax > 0 {
		util = float64(payload.NumActive) / float64(payload.NumMax) * 100
	}
	return SessionCounts{
		Active:         payload.NumActive,
		TCP:            payload.NumTCP,
		UDP:            payload.NumUDP,
		ICMP:           payload.NumICMP,
		Capacity:       payload.NumMax,
		UtilizationPct: util,
	}, nil
}

func (c *httpClient) Resources(ctx context.Context) (Resources, error) {
	body, err := c.doOp(ctx, "Resources", "<show><system><resources></resources></system></show>", c.cfg.ReadTimeout)
	if err != nil {
		return Resources{}, err
	}
	env, err := decodeEnvelope(body, "Resources", c.cfg.Endpoint)
	if err != nil {
		return Resources{}, err
	}
	var payload struct {
		DataPlaneCPU float64 `xml:"data-plane-cpu"`
		ManagementCPU float64 `xml:"mgmt-cpu"`
		Memory       float64 `xml:"mem-pct"`
		DiskRoot     float64 `xml:"disk-root-pct"`
		DiskConfig   float64 `xml:"disk-config-pct"`
		DiskLog      float64 `xml:"disk-log-pct"`
		Temperature  float64 `xml:"temperature-c"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	return Resources{
		DataPlaneCPUPct:    payload.DataPlaneCPU,
		ManagementCPUPct:   payload.ManagementCPU,
		MemoryPct:          payload.Memory,
		DiskRootPct:        payload.DiskRoot,
		DiskConfigPct:      payload.DiskConfig,
		DiskLogPct:         payload.DiskLog,
		TemperatureCelsius: payload.Temperature,
	}, nil
}

func (c *httpClient) InterfaceCounters(ctx context.Context) (InterfaceSet, error) {
	body, err := c.doOp(ctx, "InterfaceCounters", "<show><counter><interface>all</interface></counter></show>", c.cfg.ReadTimeout)
	if err != nil {
		return InterfaceSet{}, err
	}
	env, err := decodeEnvelope(body, "InterfaceCounters", c.cfg.Endpoint)
	if err != nil {
		return InterfaceSet{}, err
	}
	var payload struct {
		Entries []struct {
			Name   string `xml:"name"`
			Zone   string `xml:"zone"`
			RX     int64  `xml:"ibytes"`
			TX     int64  `xml:"obytes"`
			Errors int64  `xml:"ierrors"`
			Drops  int64  `xml:"idrops"`
		} `xml:"ifnet>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	set := InterfaceSet{Interfaces: make([]Interface, 0, len(payload.Entries))}
	for _, e := range payload.Entries {
		set.Interfaces = append(set.Interfaces, Interface{
			Name: e.Name, Zone: e.Zone, RXBytes: e.RX, TXBytes: e.TX, Errors: e.Errors, Drops: e.Drops,
		})
	}
	return set, nil
}

func (c *httpClient) logQuery(ctx context.Context, op, logType string, max int) ([]LogEntry, error) {
	cmd := "<log><get><logtype>" + logType + "</logtype><nlogs>" + strconv.Itoa(max) + "</nlogs></get></log>"
	body, err := c.doOp(ctx, op, cmd, c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, op, c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			Fields []xml.Attr `xml:",any,attr"`
			Inner  []byte     `xml:",innerxml"`
		} `xml:"log>logs>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	entries := make([]LogEntry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		entry := LogEntry{}
		for _, a := range e.Fields {
			entry[a.Name.Local] = a.Value
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *httpClient) ThreatLogs(ctx context.Context, max int) ([]LogEntry, error) {
	return c.logQuery(ctx, "ThreatLogs", "threat", max)
}

func (c *httpClient) SystemLogs(ctx context.Context, max int) ([]LogEntry, error) {
	return c.logQuery(ctx, "SystemLogs", "system", max)
}

func (c *httpClient) TrafficLogs(ctx context.Context, max int) ([]LogEntry, error) {
	return c.logQuery(ctx, "TrafficLogs", "traffic", max)
}

func (c *httpClient) ApplicationStats(ctx context.Context, max int) ([]ApplicationStat, error) {
	body, err := c.doOp(ctx, "ApplicationStats", "<show><running><application>statistics</application></running></show>", c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "ApplicationStats", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			Name     string `xml:"name"`
			Category string `xml:"category"`
			Bytes    int64  `xml:"bytes"`
			BytesSent int64 `xml:"bytes-sent"`
			BytesReceived int64 `xml:"bytes-received"`
			Sessions int64  `xml:"sessions"`
			Source   string `xml:"source"`
		} `xml:"entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	stats := make([]ApplicationStat, 0, len(payload.Entries))
	for i := range payload.Entries {
		if max > 0 && i >= max {
			break
		}
		e := payload.Entries[i]
		stats = append(stats, ApplicationStat{
			Name: e.Name, Category: e.Category, Bytes: e.Bytes,
			BytesSent: e.BytesSent, BytesReceived: e.BytesReceived,
			Sessions: e.Sessions, SourceIP: e.Source,
		})
	}
	return stats, nil
}

func (c *httpClient) ArpTable(ctx context.Context) ([]ArpEntry, error) {
	body, err := c.doOp(ctx, "ArpTable", "<show><arp><entry name='all'/></arp></show>", c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "ArpTable", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			IP        string `xml:"ip"`
			MAC       string `xml:"mac"`
			Interface string `xml:"interface"`
		} `xml:"entries>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	out := make([]ArpEntry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, ArpEntry{IP: e.IP, MAC: e.MAC, Interface: e.Interface})
	}
	return out, nil
}

func (c *httpClient) DhcpLeases(ctx context.Context) ([]DhcpLease, error) {
	body, err := c.doOp(ctx, "DhcpLeases", "<show><dhcp><lease><all></all></lease></dhcp></show>", c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "DhcpLeases", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			IP       string `xml:"ip"`
			MAC      string `xml:"mac"`
			Hostname string `xml:"hostname"`
			Expiry   string `xml:"expiry"`
		} `xml:"entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	out := make([]DhcpLease, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, DhcpLease{IP: e.IP, MAC: e.MAC, Hostname: e.Hostname, ExpiresAt: parseTimestamp(e.Expiry)})
	}
	return out, nil
}

func (c *httpClient) Licenses(ctx context.Context) ([]LicenseInfo, error) {
	body, err := c.doOp(ctx, "Licenses", "<request><license><info></info></license></request>", c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "Licenses", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			Feature string `xml:"feature"`
			Expires string `xml:"expires"`
		} `xml:"licenses>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	out := make([]LicenseInfo, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, LicenseInfo{Feature: e.Feature, Valid: e.Expires == "" || e.Expires == "Never", ExpiryDate: e.Expires})
	}
	return out, nil
}

func (c *httpClient) SoftwareUpdates(ctx context.Context) ([]SoftwareUpdate, error) {
	body, err := c.doOp(ctx, "SoftwareUpdates", "<request><system><software><check></check></software></system></request>", c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "SoftwareUpdates", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			Version    string `xml:"version"`
			Downloaded string `xml:"downloaded"`
			Current    string `xml:"current"`
		} `xml:"sw-updates>versions>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	out := make([]SoftwareUpdate, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, SoftwareUpdate{Version: e.Version, Downloaded: e.Downloaded == "yes", Current: e.Current == "yes"})
	}
	return out, nil
}

func (c *httpClient) ContentUpdates(ctx context.Context) ([]ContentUpdate, error) {
	body, err := c.doOp(ctx, "ContentUpdates", "<request><content><upgrade><check></check></upgrade></content></request>", c.cfg.DownloadTimeout)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body, "ContentUpdates", c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []struct {
			Kind      string `xml:"type"`
			Version   string `xml:"version"`
			Installed string `xml:"current"`
		} `xml:"content-updates>entry"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	out := make([]ContentUpdate, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		out = append(out, ContentUpdate{Kind: e.Kind, Version: e.Version, Installed: e.Installed == "yes"})
	}
	return out, nil
}

func (c *httpClient) TechSupportJobStart(ctx context.Context) (TechSupportJob, error) {
	body, err := c.doOp(ctx, "TechSupportJobStart", "<request><tech-support><export></export></tech-support></request>", c.cfg.ReadTimeout)
	if err != nil {
		return TechSupportJob{}, err
	}
	env, err := decodeEnvelope(body, "TechSupportJobStart", c.cfg.Endpoint)
	if err != nil {
		return TechSupportJob{}, err
	}
	var payload struct {
		Job string `xml:"job"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	return TechSupportJob{JobID: payload.Job, Status: "pending"}, nil
}

func (c *httpClient) TechSupportJobStatus(ctx context.Context, jobID string) (TechSupportJob, error) {
	cmd := "<show><jobs><id>" + jobID + "</id></jobs></show>"
	body, err := c.doOp(ctx, "TechSupportJobStatus", cmd, c.cfg.ReadTimeout)
	if err != nil {
		return TechSupportJob{}, err
	}
	env, err := decodeEnvelope(body, "TechSupportJobStatus", c.cfg.Endpoint)
	if err != nil {
		return TechSupportJob{}, err
	}
	var payload struct {
		Status string `xml:"job>status"`
	}
	_ = xml.Unmarshal(env.Result.Inner, &payload)
	return TechSupportJob{JobID: jobID, Status: payload.Status}, nil
}

func (c *httpClient) TechSupportJobURL(ctx context.Context, jobID string) (string, error) {
	job, err := c.TechSupportJobStatus(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != "FIN" {
		return "", newOpError("TechSupportJobURL", c.cfg.Endpoint, ErrBadResponse)
	}
	return "https://" + c.cfg.Endpoint + "/export/tech-support/" + jobID, nil
}

// parseUptime parses PAN-OS's "N days, HH:MM:SS" uptime string into seconds,
// returning 0 on any format it doesn't recognize rather than failing the
// whole poll over a cosmetic field.
func parseUptime(s string) int64 {
	var days, h, m, sec int
	if _, err := fmt.Sscanf(s, "%d days, %d:%d:%d", &days, &h, &m, &sec); err != nil {
		return 0
	}
	return int64(days)*86400 + int64(h)*3600 + int64(m)*60 + int64(sec)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006/01/02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
