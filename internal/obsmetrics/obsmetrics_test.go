package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew_RegistersAndIncrementsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SamplesWritten.Inc()
	m.PollDuration.WithLabelValues("fw-01", "system_info").Observe(0.25)
	m.PollErrors.WithLabelValues("fw-01", "system_info", "timeout").Inc()
	m.AlertsFired.WithLabelValues("critical", "cpu").Inc()
	m.DevicesEnabled.Set(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected at least one registered metric family")
	}

	var found bool
	for _, f := range families {
		if f.GetName() == "panfm_store_samples_written_total" {
			found = true
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("samples_written_total = %v, want 1", got)
			}
		}
	}
	if !found {
		t.Error("panfm_store_samples_written_total not found in registry output")
	}
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected registering the same series twice against one registry to panic")
		}
	}()
	New(reg)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestDevicesEnabled_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.DevicesEnabled.Set(7)
	if got := gaugeValue(t, m.DevicesEnabled); got != 7 {
		t.Errorf("DevicesEnabled = %v, want 7", got)
	}
}
