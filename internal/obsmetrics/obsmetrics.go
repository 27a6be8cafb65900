// Package obsmetrics exposes PANfm's runtime metrics via
// github.com/prometheus/client_golang, replacing the hand-rolled exposition
// format the teacher process wrote by hand (internal/metrics in the teacher
// repo serialized its own histogram structs to text). A real histogram/counter
// vector library gets quantiles, /metrics content negotiation, and
// process-level collectors for free.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of PANfm's exported series. Constructed once per
// process and passed down explicitly — no package-level default registry use
// beyond what promauto requires.
type Metrics struct {
	PollDuration   *prometheus.HistogramVec
	PollErrors     *prometheus.CounterVec
	SamplesWritten prometheus.Counter
	AlertsFired    *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
	SchedulerJobDuration *prometheus.HistogramVec
	DevicesEnabled prometheus.Gauge
	CollectionQueueDepth prometheus.Gauge

	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New registers every series against reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panfm",
			Subsystem: "collector",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a single firewall poll operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device_id", "op"}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panfm",
			Subsystem: "collector",
			Name:      "poll_errors_total",
			Help:      "Count of failed firewall poll operations by error class.",
		}, []string{"device_id", "op", "error_class"}),
		SamplesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "panfm",
			Subsystem: "store",
			Name:      "samples_written_total",
			Help:      "Count of sample rows written to the time-series store.",
		}),
		AlertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panfm",
			Subsystem: "alerting",
			Name:      "alerts_fired_total",
			Help:      "Count of alerts that fired, by severity.",
		}, []string{"severity", "metric_type"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panfm",
			Subsystem: "notify",
			Name:      "notifications_sent_total",
			Help:      "Count of notification dispatch attempts, by channel kind and outcome.",
		}, []string{"kind", "outcome"}),
		SchedulerJobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panfm",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of one scheduler job run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		DevicesEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "panfm",
			Subsystem: "scheduler",
			Name:      "devices_enabled",
			Help:      "Number of devices currently enabled for polling.",
		}),
		CollectionQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "panfm",
			Subsystem: "scheduler",
			Name:      "collection_queue_depth",
			Help:      "Number of queued on-demand collection requests.",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panfm",
			Subsystem: "apiserver",
			Name:      "http_requests_total",
			Help:      "Count of northbound API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "panfm",
			Subsystem: "apiserver",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of northbound API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
