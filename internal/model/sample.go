// Package model defines the normalized data shapes the collector writes and the
// store reads back. Types here are the single source of truth for defaulting:
// anything that can come back NULL from the database is reconstructed
// deterministically by the Store, never left as a raw map.
package model

import "time"

// Sessions is the nested session-counter subobject embedded in a Sample.
type Sessions struct {
	Active      int64   `json:"active"`
	TCP         int64   `json:"tcp"`
	UDP         int64   `json:"udp"`
	ICMP        int64   `json:"icmp"`
	Capacity    int64   `json:"capacity"`
	Utilization float64 `json:"utilization_pct"`
}

// CPU is the nested CPU-usage subobject embedded in a Sample.
type CPU struct {
	DataPlaneCPU  float64 `json:"data_plane_cpu"`
	ManagementCPU float64 `json:"management_cpu"`
}

// DiskUsage is the nested disk-usage subobject embedded in a Sample.
type DiskUsage struct {
	RootPct   float64 `json:"root_pct"`
	ConfigPct float64 `json:"config_pct"`
	LogPct    float64 `json:"log_pct"`
}

// DatabaseVersions is the nested content-database-version subobject.
type DatabaseVersions struct {
	AppVersion      string `json:"app_version"`
	ThreatVersion   string `json:"threat_version"`
	AVVersion       string `json:"av_version"`
	WildfireVersion string `json:"wildfire_version"`
}

// License is the nested license-flag subobject embedded in a Sample.
type License struct {
	Valid         bool   `json:"valid"`
	ExpiryDate    string `json:"expiry_date"`
	Support       bool   `json:"support"`
	Threat        bool   `json:"threat_prevention"`
	URLFiltering  bool   `json:"url_filtering"`
	GlobalProtect bool   `json:"global_protect"`
}

// ClientInfo names a single IP's contribution to a top-bandwidth-client summary.
type ClientInfo struct {
	IP         string `json:"ip"`
	Hostname   string `json:"hostname,omitempty"`
	CustomName string `json:"custom_name,omitempty"`
	TotalBytes int64  `json:"total_bytes"`
}

// TopClients is the tagged-variant payload for §3's "top bandwidth clients"
// field: overall, internal-only, and internet-bound views of the same window.
type TopClients struct {
	Overall  *ClientInfo `json:"overall,omitempty"`
	Internal *ClientInfo `json:"internal,omitempty"`
	Internet *ClientInfo `json:"internet,omitempty"`
}

// CategoryInfo names a single traffic category's aggregate counters.
type CategoryInfo struct {
	Category      string `json:"category"`
	Bytes         int64  `json:"bytes"`
	Sessions      int64  `json:"sessions"`
	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
}

// TopCategories is the tagged-variant payload for §3's "top categories" field.
type TopCategories struct {
	LAN      *CategoryInfo `json:"lan,omitempty"`
	Internet *CategoryInfo `json:"internet,omitempty"`
	WAN      *CategoryInfo `json:"wan,omitempty"`
}

// TopApplication is one entry of the top-5-by-bandwidth application list.
type TopApplication struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Sessions int64  `json:"sessions"`
	Bytes    int64  `json:"bytes"`
}

// Sample is the central per-poll time-series row keyed (time, device_id).
type Sample struct {
	Time     time.Time `json:"time"`
	DeviceID string    `json:"device_id"`

	InboundMbps  float64 `json:"inbound_mbps"`
	OutboundMbps float64 `json:"outbound_mbps"`
	TotalMbps    float64 `json:"total_mbps"`
	InboundPPS   float64 `json:"inbound_pps"`
	OutboundPPS  float64 `json:"outbound_pps"`

	Sessions  Sessions  `json:"sessions"`
	CPU       CPU       `json:"cpu"`
	MemoryPct float64   `json:"memory_pct"`
	DiskUsage DiskUsage `json:"disk_usage"`

	DatabaseVersions DatabaseVersions `json:"database_versions"`

	Hostname      string `json:"hostname"`
	PANOSVersion  string `json:"panos_version"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	License License `json:"license"`

	TopClients      TopClients       `json:"top_clients"`
	TopCategories   TopCategories    `json:"top_categories"`
	TopApplications []TopApplication `json:"top_applications"`

	ThreatsCriticalCount int64 `json:"threats_critical_count"`
	InterfaceErrors      int64 `json:"interface_errors"`
}

// Resolution selects which physical table QuerySamples reads from.
type Resolution string

const (
	ResolutionRaw    Resolution = "raw"
	ResolutionHourly Resolution = "hourly"
	ResolutionDaily  Resolution = "daily"
	ResolutionAuto   Resolution = "auto"
)

// ResolveAuto implements the §4.3 auto-resolution thresholds: raw for ranges up
// to 6h, hourly up to 7d, daily beyond that.
func ResolveAuto(span time.Duration) Resolution {
	switch {
	case span <= 6*time.Hour:
		return ResolutionRaw
	case span <= 7*24*time.Hour:
		return ResolutionHourly
	default:
		return ResolutionDaily
	}
}

// MetricBag is the flattened view of a Sample used by the Alert Engine. Field
// names here are the alert_config.metric_type vocabulary from §4.4 step 1.
type MetricBag map[string]float64

// Flatten builds the metric bag the Alert Engine evaluates thresholds against,
// flattening the nested subobjects per §4.4 step 1.
func (s Sample) Flatten() MetricBag {
	bag := MetricBag{
		"throughput_in":    s.InboundMbps,
		"throughput_out":   s.OutboundMbps,
		"throughput_total": s.TotalMbps,
		"cpu":              s.CPU.DataPlaneCPU,
		"cpu_management":   s.CPU.ManagementCPU,
		"memory":           s.MemoryPct,
		"sessions":         float64(s.Sessions.Active),
		"sessions_tcp":     float64(s.Sessions.TCP),
		"sessions_udp":     float64(s.Sessions.UDP),
		"sessions_icmp":    float64(s.Sessions.ICMP),
		"disk_root":        s.DiskUsage.RootPct,
		"disk_config":      s.DiskUsage.ConfigPct,
		"disk_log":         s.DiskUsage.LogPct,
		"threats_critical": float64(s.ThreatsCriticalCount),
		"interface_errors": float64(s.InterfaceErrors),
	}
	return bag
}
