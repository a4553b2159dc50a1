package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/config"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/recorder"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/watch"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// The debris sits 20 m from the satellite on the same orbit, so the pair
// collides on the first tick.
const collisionScenario = `
[simulation]
tick = "10s"
epoch = 2025-01-01T00:00:00Z

[[satellite]]
id = "sat"
position = [7000.0, 0.0, 0.0]
velocity = [0.0, 7.5, 0.0]
radius = 0.01
fuel = 10.0

[[debris]]
id = "rb"
position = [7000.02, 0.0, 0.0]
velocity = [0.0, 7.5, 0.0]
radius = 0.025
`

const scriptedScenario = `
[simulation]
tick = "10s"

[[satellite]]
id = "dry"
orbit = { altitude = 600.0, inclination = 53.0 }
radius = 0.01
fuel = 0.0

[[command]]
tick = 2
satellite = "dry"
kind = "deorbit"
`

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func testConfig(scenario string) config.Config {
	return config.Config{
		Scenario:          scenario,
		Ticks:             10,
		Mode:              "accelerated",
		Speed:             1,
		Output:            "jsonl",
		Every:             1,
		StopOnMissionOver: true,
	}
}

func TestRunSimulation_CollisionEndsMission(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(writeScenario(t, collisionScenario))
	cfg.Record.Path = filepath.Join(t.TempDir(), "runs.db")

	var out bytes.Buffer
	res, err := runSimulation(ctx, cfg, &out, logging.Noop())
	if err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	if res.Final.Tick != 1 || !res.Final.MissionOver {
		t.Fatalf("run stopped at tick %d, mission over %v", res.Final.Tick, res.Final.MissionOver)
	}

	var kinds []string
	var lastTick jsonTick
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(sc.Bytes(), &head); err != nil {
			t.Fatalf("invalid jsonl line %q: %v", sc.Text(), err)
		}
		switch head.Type {
		case "event":
			var ev jsonEvent
			if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
				t.Fatal(err)
			}
			kinds = append(kinds, ev.Kind)
		case "tick":
			if err := json.Unmarshal(sc.Bytes(), &lastTick); err != nil {
				t.Fatal(err)
			}
		}
	}
	if strings.Join(kinds, ",") != "collision,destroyed" {
		t.Fatalf("event kinds = %v", kinds)
	}
	if lastTick.Tick != 1 || !lastTick.MissionOver || lastTick.Satellites != 0 {
		t.Fatalf("last tick line = %+v", lastTick)
	}

	rec, err := recorder.Open(ctx, cfg.Record.Path, nil)
	if err != nil {
		t.Fatalf("recorder.Open: %v", err)
	}
	defer rec.Close()
	run, err := rec.Run(ctx, res.RunID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !run.Finished || !run.MissionOver || run.FinalScore != res.Final.Score {
		t.Fatalf("recorded run = %+v", run)
	}
	collisions, err := rec.Events(ctx, res.RunID, model.EventCollision)
	if err != nil || len(collisions) != 1 {
		t.Fatalf("recorded collisions = %+v, err = %v", collisions, err)
	}

	var hist bytes.Buffer
	if err := printHistory(ctx, cfg.Record.Path, "", nil, &hist); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	if !strings.Contains(hist.String(), res.RunID) || !strings.Contains(hist.String(), "mission over") {
		t.Fatalf("history output:\n%s", hist.String())
	}
	hist.Reset()
	if err := printHistory(ctx, cfg.Record.Path, res.RunID, []string{"destroyed"}, &hist); err != nil {
		t.Fatalf("printHistory(run): %v", err)
	}
	if !strings.Contains(hist.String(), "destroyed") || strings.Contains(hist.String(), "collision") {
		t.Fatalf("filtered history output:\n%s", hist.String())
	}
}

func TestRunSimulation_ScriptedCommands(t *testing.T) {
	cfg := testConfig(writeScenario(t, scriptedScenario))
	cfg.Ticks = 3
	cfg.Output = "text"

	var out bytes.Buffer
	res, err := runSimulation(context.Background(), cfg, &out, logging.Noop())
	if err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	if res.Final.Tick != 3 || res.Final.MissionOver {
		t.Fatalf("final snapshot = tick %d mission over %v", res.Final.Tick, res.Final.MissionOver)
	}
	if res.Final.Stats.DeorbitFailures != 1 {
		t.Fatalf("stats = %+v", res.Final.Stats)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var failures int
	for _, line := range lines {
		if strings.Contains(line, "deorbit_failure") {
			failures++
			if !strings.Contains(line, "dry") {
				t.Fatalf("event line %q does not name the satellite", line)
			}
		}
	}
	if failures != 1 || len(lines) != 4 {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRunSimulation_MissingScenario(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := runSimulation(context.Background(), cfg, &bytes.Buffer{}, nil); err == nil {
		t.Fatalf("expected an error for a missing scenario")
	}
}

func TestValidateScenario(t *testing.T) {
	var out bytes.Buffer
	if err := validateScenario("../../configs/scenario.toml", &out); err != nil {
		t.Fatalf("sample scenario: %v\n%s", err, out.String())
	}
	if !strings.HasPrefix(out.String(), "✓") || !strings.Contains(out.String(), "detector grid") {
		t.Fatalf("output = %q", out.String())
	}

	out.Reset()
	bad := writeScenario(t, "[simulation]\ntick = \"0s\"\n")
	if err := validateScenario(bad, &out); err == nil {
		t.Fatalf("zero tick accepted")
	}
	if !strings.HasPrefix(out.String(), "✗") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestPrinterTextEvery(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, "text", 2)
	epoch := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	p.Print(core.Snapshot{Tick: 1, SimTime: epoch.Add(10 * time.Second), Events: []model.Event{{
		Seq: 1, Tick: 1, Kind: model.EventCloseApproach,
		Participants: []string{"sat", "rb"}, Severity: model.SeverityCloseApproach, Distance: 1.5,
	}}})
	p.Print(core.Snapshot{Tick: 2, SimTime: epoch.Add(20 * time.Second), Score: -1})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output:\n%s", out.String())
	}
	if !strings.Contains(lines[0], "close_approach") || !strings.Contains(lines[0], "sat rb (1.500 km)") {
		t.Fatalf("event line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "tick 2") || !strings.Contains(lines[1], "score=-1.0") {
		t.Fatalf("summary line = %q", lines[1])
	}
	if p.Err() != nil {
		t.Fatalf("Err() = %v", p.Err())
	}
}

func TestPrintHistoryRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "runs.db")
	rec, err := recorder.Open(ctx, db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.BeginRun(ctx, "r1", "s", core.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	rec.Close()

	if err := printHistory(ctx, db, "r1", []string{"explosion"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("unknown kind accepted")
	}
	if err := printHistory(ctx, db, "nope", nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("unknown run accepted")
	}
}

func TestLatestReloadKeepsNewest(t *testing.T) {
	if _, ok := latestReload(nil); ok {
		t.Fatalf("nil channel produced a reload")
	}

	ch := make(chan watch.Reload, 4)
	for i := 1; i <= 3; i++ {
		cfg := core.DefaultConfig()
		cfg.Tick = time.Duration(i) * time.Second
		ch <- watch.Reload{Path: "scenario.toml", Config: cfg}
	}
	r, ok := latestReload(ch)
	if !ok || r.Config.Tick != 3*time.Second {
		t.Fatalf("latestReload = %+v, %v; want the third reload", r.Config.Tick, ok)
	}
	if len(ch) != 0 {
		t.Fatalf("%d reloads left queued", len(ch))
	}

	close(ch)
	if _, ok := latestReload(ch); ok {
		t.Fatalf("closed channel produced a reload")
	}
}
