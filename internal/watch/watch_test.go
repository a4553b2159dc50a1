package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
)

const scenarioV1 = `
[simulation]
tick = "10s"

[[satellite]]
id = "sat-1"
orbit = { altitude = 550.0, inclination = 53.0 }
fuel = 5.0
`

const scenarioV2 = scenarioV1 + `
[[satellite]]
id = "sat-2"
orbit = { altitude = 700.0, inclination = 98.0 }
fuel = 5.0
`

func startWatcher(t *testing.T, path string) *ScenarioWatcher {
	t.Helper()
	w, err := NewScenarioWatcher(path)
	if err != nil {
		t.Fatalf("NewScenarioWatcher: %v", err)
	}
	w.Debounce = 20 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func nextReload(t *testing.T, w *ScenarioWatcher) Reload {
	t.Helper()
	select {
	case r := <-w.Changes:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload received")
		return Reload{}
	}
}

func TestScenarioWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.toml")
	if err := os.WriteFile(path, []byte(scenarioV1), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(scenarioV2), 0o644); err != nil {
		t.Fatal(err)
	}

	r := nextReload(t, w)
	if r.Err != nil {
		t.Fatalf("reload error: %v", r.Err)
	}
	if len(r.Config.Satellites) != 2 || r.Config.Tick != 10*time.Second {
		t.Fatalf("reloaded config = %+v", r.Config)
	}
}

func TestScenarioWatcherReportsInvalidScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(scenarioV1), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("[simulation]\ntick = \"-1s\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := nextReload(t, w)
	if r.Err == nil {
		t.Fatalf("expected an error for a negative tick, got %+v", r.Config)
	}
}

func TestScenarioWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(scenarioV1), 0o644); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(scenarioV2), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	nextReload(t, w)

	select {
	case r := <-w.Changes:
		t.Fatalf("burst produced a second reload: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestScenarioWatcherStopWithUnreadReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.toml")
	if err := os.WriteFile(path, []byte(scenarioV1), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewScenarioWatcher(path)
	if err != nil {
		t.Fatalf("NewScenarioWatcher: %v", err)
	}
	var loads int
	w.load = func(string) (core.Config, error) {
		loads++
		cfg := core.DefaultConfig()
		cfg.Tick = time.Duration(loads) * time.Second
		return cfg, nil
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2*cap(w.changes); i++ {
		w.emit()
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop blocked with %d unread reloads", len(w.changes))
	}

	var last Reload
	n := 0
	for r := range w.Changes {
		last = r
		n++
	}
	if n != cap(w.changes) {
		t.Fatalf("kept %d reloads, want %d", n, cap(w.changes))
	}
	if want := time.Duration(loads) * time.Second; last.Config.Tick != want {
		t.Fatalf("newest reload tick = %s, want %s", last.Config.Tick, want)
	}
}
