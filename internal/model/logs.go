package model

import "time"

// ThreatSeverity is the threat_logs.severity enum from §3.
type ThreatSeverity string

const (
	ThreatCritical  ThreatSeverity = "critical"
	ThreatHigh      ThreatSeverity = "high"
	ThreatMedium    ThreatSeverity = "medium"
	ThreatLow       ThreatSeverity = "low"
	ThreatURLFilter ThreatSeverity = "url-filter"
)

// ThreatLog is one row of the threat_logs hypertable.
type ThreatLog struct {
	Time     time.Time      `json:"time"`
	DeviceID string         `json:"device_id"`
	Severity ThreatSeverity `json:"severity"`
	ThreatName string       `json:"threat_name"`
	SourceIP string         `json:"source_ip"`
	DestIP   string         `json:"dest_ip"`
	Envelope []byte         `json:"-"`
}

// TrafficType is the traffic_type enum shared by category_bandwidth and
// client_bandwidth rows.
type TrafficType string

const (
	TrafficLAN      TrafficType = "lan"
	TrafficInternet TrafficType = "internet"
	TrafficWAN      TrafficType = "wan"
	TrafficTotal    TrafficType = "total"
)

// TrafficFlow is one row of the traffic_flows hypertable; its composite unique
// key accumulates byte/session counters on conflict (§3).
type TrafficFlow struct {
	Time        time.Time `json:"time"`
	DeviceID    string    `json:"device_id"`
	SourceIP    string    `json:"source_ip"`
	DestIP      string    `json:"dest_ip"`
	DestPort    int32     `json:"dest_port"`
	Application string    `json:"application"`
	Category    string    `json:"category"`
	Protocol    string    `json:"protocol"`
	BytesTotal  int64     `json:"bytes_total"`
	BytesSent   int64     `json:"bytes_sent"`
	BytesReceived int64   `json:"bytes_received"`
	Sessions    int64     `json:"sessions"`
	FromZone    string    `json:"from_zone,omitempty"`
	ToZone      string    `json:"to_zone,omitempty"`
	VLAN        string    `json:"vlan,omitempty"`
	Hostname    string    `json:"hostname,omitempty"`
}

// ApplicationSample is one row of application_samples: a per-application
// aggregate over a collection window.
type ApplicationSample struct {
	Time        time.Time `json:"time"`
	DeviceID    string    `json:"device_id"`
	Application string    `json:"application"`
	Category    string    `json:"category"`
	Bytes       int64     `json:"bytes"`
	BytesSent   int64     `json:"bytes_sent"`
	BytesReceived int64   `json:"bytes_received"`
	Sessions    int64     `json:"sessions"`
	TopSource   string    `json:"top_source,omitempty"`
	Zones       []string  `json:"zones,omitempty"`
	VLAN        string    `json:"vlan,omitempty"`
}

// CategoryBandwidth is one row of category_bandwidth: a per-(category,
// traffic_type) aggregate.
type CategoryBandwidth struct {
	Time        time.Time   `json:"time"`
	DeviceID    string      `json:"device_id"`
	Category    string      `json:"category"`
	TrafficType TrafficType `json:"traffic_type"`
	Bytes       int64       `json:"bytes"`
	Sessions    int64       `json:"sessions"`
	BytesSent   int64       `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
}

// ClientBandwidth is one row of client_bandwidth: a per-(client_ip,
// traffic_type) aggregate. BandwidthMbps is derived, not stored input.
type ClientBandwidth struct {
	Time          time.Time   `json:"time"`
	DeviceID      string      `json:"device_id"`
	ClientIP      string      `json:"client_ip"`
	TrafficType   TrafficType `json:"traffic_type"`
	Bytes         int64       `json:"bytes"`
	Sessions      int64       `json:"sessions"`
	WindowSeconds int64       `json:"window_seconds"`
}

// BandwidthMbps derives bandwidth per §3: bytes·8 / window_seconds / 1e6.
func (c ClientBandwidth) BandwidthMbps() float64 {
	if c.WindowSeconds <= 0 {
		return 0
	}
	return float64(c.Bytes) * 8 / float64(c.WindowSeconds) / 1e6
}

// SchedulerStat is one heartbeat row in scheduler_stats_history.
type SchedulerStat struct {
	Time             time.Time `json:"time"`
	CollectionCount  int64     `json:"collection_count"`
	DevicesEnabled   int       `json:"devices_enabled"`
	DevicesFailed    int       `json:"devices_failed"`
	ProcessCPUPct    float64   `json:"process_cpu_pct"`
	ProcessMemBytes  int64     `json:"process_mem_bytes"`
	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`
}
