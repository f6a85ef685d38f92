package banchometrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	banchometrics "banchod/internal/metrics"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := banchometrics.NewCollector(reg)

	if c.Sessions == nil || c.Channels == nil || c.NotifyDepth == nil {
		t.Fatal("expected gauges to be non-nil")
	}
	if c.PacketsDispatched == nil || c.PacketsUnknown == nil {
		t.Fatal("expected packet counters to be non-nil")
	}
	if c.ReaperSweeps == nil || c.ReaperEvictions == nil || c.LoginFailures == nil {
		t.Fatal("expected reaper/login counters to be non-nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather(): %v", err)
	}
}

func TestSessionsGaugeReflectsSetSessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := banchometrics.NewCollector(reg)

	c.SetSessions(42)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather(): %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "banchod_bancho_sessions" {
			found = true
			if got := f.Metric[0].GetGauge().GetValue(); got != 42 {
				t.Fatalf("sessions gauge = %v, want 42", got)
			}
		}
	}
	if !found {
		t.Fatal("sessions metric family not found")
	}
}

func TestRecordSweepIncrementsBothCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := banchometrics.NewCollector(reg)

	c.RecordSweep("session", 3)
	c.RecordSweep("session", 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather(): %v", err)
	}
	var sweeps, evictions float64
	for _, f := range families {
		switch f.GetName() {
		case "banchod_bancho_reaper_sweeps_total":
			sweeps = f.Metric[0].GetCounter().GetValue()
		case "banchod_bancho_reaper_evictions_total":
			evictions = f.Metric[0].GetCounter().GetValue()
		}
	}
	if sweeps != 2 {
		t.Fatalf("sweeps = %v, want 2", sweeps)
	}
	if evictions != 5 {
		t.Fatalf("evictions = %v, want 5", evictions)
	}
}
