package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

func TestEngineCollectorRecordsTicksAndEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	collector.ObserveTick(2 * time.Millisecond)
	collector.ObserveTick(3 * time.Millisecond)
	collector.RecordEvents([]model.Event{
		{Kind: model.EventCollision},
		{Kind: model.EventDestroyed},
		{Kind: model.EventCollision},
	})

	if got := testutil.ToFloat64(collector.Ticks); got != 2 {
		t.Fatalf("sim_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Events.WithLabelValues("collision")); got != 2 {
		t.Fatalf("sim_events_total{kind=collision} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Events.WithLabelValues("destroyed")); got != 1 {
		t.Fatalf("sim_events_total{kind=destroyed} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "sim_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("sim_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestEngineCollectorCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.RecordCommand(model.CmdStartDeorbit, true)
	collector.RecordCommand(model.CmdRefuel, false)

	if got := testutil.ToFloat64(collector.Commands.WithLabelValues("start_deorbit", "accepted")); got != 1 {
		t.Fatalf("accepted deorbits = %v", got)
	}
	if got := testutil.ToFloat64(collector.Commands.WithLabelValues("refuel", "rejected")); got != 1 {
		t.Fatalf("rejected refuels = %v", got)
	}
}

func TestEngineCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}
	first.SetScore(-42)
	if got := testutil.ToFloat64(second.Score); got != -42 {
		t.Fatalf("second collector score = %v, want shared -42", got)
	}
}

func TestNilEngineCollectorIsSafe(t *testing.T) {
	var c *EngineCollector
	c.ObserveTick(time.Second)
	c.RecordEvents([]model.Event{{Kind: model.EventCollision}})
	c.SetPopulation(1, 2)
	c.SetScore(3)
	c.RecordCommand(model.CmdCancel, true)
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}
	collector.SetPopulation(3, 17)
	collector.SetScore(-105)
	collector.ObserveTick(time.Millisecond)
	collector.RecordEvents([]model.Event{{Kind: model.EventCloseApproach}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{
		"sim_active_satellites 3",
		"sim_active_debris 17",
		"sim_score -105",
		`sim_events_total{kind="close_approach"} 1`,
		"sim_tick_duration_seconds_count 1",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
