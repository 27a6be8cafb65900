package model

import "time"

// Severity is the alert_config.severity / alert_history.severity enum.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Operator is the alert_config.operator comparison enum.
type Operator string

const (
	OpGreaterThan   Operator = ">"
	OpGreaterEquals Operator = ">="
	OpLessThan      Operator = "<"
	OpLessEquals    Operator = "<="
	OpEquals        Operator = "="
)

// Compare evaluates actual <op> threshold.
func (o Operator) Compare(actual, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return actual > threshold
	case OpGreaterEquals:
		return actual >= threshold
	case OpLessThan:
		return actual < threshold
	case OpLessEquals:
		return actual <= threshold
	case OpEquals:
		return actual == threshold
	default:
		return false
	}
}

// AlertConfig is one row of the relational alert_config table. DeviceID nil
// means the config applies to every device.
type AlertConfig struct {
	ID                 string   `json:"id"`
	DeviceID           *string  `json:"device_id,omitempty"`
	MetricType         string   `json:"metric_type"`
	ThresholdValue     float64  `json:"threshold_value"`
	Operator           Operator `json:"operator"`
	Severity           Severity `json:"severity"`
	Enabled            bool     `json:"enabled"`
	NotificationChannels []string `json:"notification_channels"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AppliesTo reports whether this config should be evaluated for deviceID.
func (c AlertConfig) AppliesTo(deviceID string) bool {
	return c.DeviceID == nil || *c.DeviceID == deviceID
}

// AlertHistory is one row of the alert_history hypertable (time = triggered_at).
type AlertHistory struct {
	TriggeredAt    time.Time `json:"triggered_at"`
	ID             int64     `json:"id"`
	ConfigID       string    `json:"config_id"`
	DeviceID       string    `json:"device_id"`
	ActualValue    float64   `json:"actual_value"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedReason *string    `json:"resolved_reason,omitempty"`
}

// AlertCooldown is one row of alert_cooldown: unique per (device_id,
// alert_config_id).
type AlertCooldown struct {
	DeviceID      string    `json:"device_id"`
	AlertConfigID string    `json:"alert_config_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NotificationKind is the notification_channel.kind enum.
type NotificationKind string

const (
	NotificationEmail   NotificationKind = "email"
	NotificationWebhook NotificationKind = "webhook"
	NotificationSlack   NotificationKind = "slack"
)

// NotificationChannel is one row of the notification_channel table.
type NotificationChannel struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	Name    string           `json:"name"`
	Config  []byte           `json:"-"` // raw JSON config, decoded by internal/notify
	Enabled bool             `json:"enabled"`
}

// MaintenanceWindow is one row of maintenance_window: an interval during which
// alert dispatch is suppressed.
type MaintenanceWindow struct {
	ID       string    `json:"id"`
	DeviceID *string   `json:"device_id,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason,omitempty"`
}

// Active reports whether t falls within the window.
func (w MaintenanceWindow) Active(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// CollectionRequestStatus is the collection_requests.status enum for the
// on-demand-poll IPC queue (§4.2).
type CollectionRequestStatus string

const (
	RequestQueued    CollectionRequestStatus = "queued"
	RequestRunning   CollectionRequestStatus = "running"
	RequestCompleted CollectionRequestStatus = "completed"
	RequestFailed    CollectionRequestStatus = "failed"
)

// CollectionRequest is one row of the collection_requests queue table.
type CollectionRequest struct {
	ID        int64                   `json:"id"`
	DeviceID  string                  `json:"device_id"`
	Status    CollectionRequestStatus `json:"status"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Error     *string                 `json:"error,omitempty"`
}
