package core

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

func newTestLifecycle(exists func(string) bool) *LifecycleManager {
	return NewLifecycleManager(DefaultConfig(), exists, logging.Noop())
}

func eventKinds(events []model.Event) []model.EventKind {
	var out []model.EventKind
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func collision(a, b *model.Body) Pair {
	return Pair{A: a, B: b, Severity: model.SeverityCollision, Distance: a.Position.DistanceTo(b.Position)}
}

func TestResolve_SatelliteDebrisCollisionBreaksUp(t *testing.T) {
	m := newTestLifecycle(nil)
	s := satAt("sat", 7000, 0.01)
	d := debrisAt("rb", 7000.02, 0.04)

	out := m.Resolve(context.Background(), 1, nil, []Pair{collision(s, d)})

	want := []model.EventKind{model.EventCollision, model.EventDestroyed}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if s.Satellite.Health != model.HealthDestroyed || !d.Debris.Removed {
		t.Fatalf("participants not consumed: sat=%v debris removed=%v", s.Satellite.Health, d.Debris.Removed)
	}
	col := out.Events[0]
	if col.Severity != model.SeverityCollision || !col.Involves("sat") || !col.Involves("rb") {
		t.Fatalf("collision event = %+v", col)
	}

	cfg := DefaultConfig()
	if len(out.Spawned) != cfg.FragmentCount {
		t.Fatalf("spawned %d fragments, want %d", len(out.Spawned), cfg.FragmentCount)
	}
	seen := map[string]bool{}
	for _, f := range out.Spawned {
		if f.Kind != model.KindDebris || f.Debris.Origin != model.OriginCollision || f.Debris.Parent != col.Seq {
			t.Fatalf("fragment %+v not tied to collision %d", f, col.Seq)
		}
		if f.Radius != cfg.FragmentRadius {
			t.Fatalf("fragment radius = %v", f.Radius)
		}
		if seen[f.ID] {
			t.Fatalf("duplicate fragment id %q", f.ID)
		}
		seen[f.ID] = true
	}
}

func TestResolve_SmallDebrisDoesNotBreakUp(t *testing.T) {
	m := newTestLifecycle(nil)
	a := debrisAt("a", 7000, 0.01)
	b := debrisAt("b", 7000.01, 0.01)

	out := m.Resolve(context.Background(), 1, nil, []Pair{collision(a, b)})
	if len(out.Spawned) != 0 {
		t.Fatalf("small debris spawned %d fragments", len(out.Spawned))
	}
	if diff := cmp.Diff([]model.EventKind{model.EventCollision}, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if !a.Debris.Removed || !b.Debris.Removed {
		t.Fatalf("colliding debris not removed")
	}
}

func TestResolve_SatelliteSatelliteCollision(t *testing.T) {
	m := newTestLifecycle(nil)
	a := satAt("a", 7000, 0.01)
	b := satAt("b", 7000.01, 0.01)

	out := m.Resolve(context.Background(), 3, nil, []Pair{collision(a, b)})
	want := []model.EventKind{model.EventCollision, model.EventDestroyed, model.EventDestroyed}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	for i, ev := range out.Events {
		if ev.Tick != 3 || ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has tick %d seq %d", i, ev.Tick, ev.Seq)
		}
	}
}

func TestResolve_SatelliteDestroyedOnce(t *testing.T) {
	m := newTestLifecycle(nil)
	s := satAt("sat", 7000, 0.01)
	d1 := debrisAt("d1", 7000.01, 0.01)
	d2 := debrisAt("d2", 6999.99, 0.01)

	out := m.Resolve(context.Background(), 1, nil, []Pair{collision(s, d1), collision(s, d2)})
	want := []model.EventKind{model.EventCollision, model.EventDestroyed, model.EventCollision}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if !d2.Debris.Removed {
		t.Fatalf("second debris not removed")
	}
}

func TestResolve_CloseApproachOnlyReports(t *testing.T) {
	m := newTestLifecycle(nil)
	s := satAt("sat", 7000, 0.01)
	d := debrisAt("d", 7003, 0.01)

	out := m.Resolve(context.Background(), 1, nil, []Pair{{A: s, B: d, Severity: model.SeverityCloseApproach, Distance: 3}})
	if len(out.Events) != 1 || out.Events[0].Kind != model.EventCloseApproach || out.Events[0].Distance != 3 {
		t.Fatalf("events = %+v", out.Events)
	}
	if s.Terminal() || d.Terminal() {
		t.Fatalf("close approach consumed a participant")
	}
}

func TestResolve_Reentry(t *testing.T) {
	m := newTestLifecycle(nil)
	deorbiting := satAt("down", EarthRadiusKm+100, 0.01)
	deorbiting.Satellite.Command = model.CommandDeorbiting
	idle := satAt("lost", EarthRadiusKm+100, 0.01)
	junk := debrisAt("junk", EarthRadiusKm+100, 0.01)

	below := StepResult{BelowReentry: true}
	steps := []Step{{deorbiting, below}, {idle, below}, {junk, below}}
	out := m.Resolve(context.Background(), 9, steps, nil)

	want := []model.EventKind{model.EventDeorbitSuccess, model.EventDestroyed, model.EventDebrisReentry}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if !deorbiting.Satellite.Deorbited || deorbiting.Satellite.Health == model.HealthDestroyed {
		t.Fatalf("deorbited satellite state = %+v", deorbiting.Satellite)
	}
	if idle.Satellite.Health != model.HealthDestroyed {
		t.Fatalf("uncontrolled reentry left satellite %v", idle.Satellite.Health)
	}
	if !junk.Debris.Removed {
		t.Fatalf("reentering debris not removed")
	}
}

func TestResolve_CollisionBeatsReentry(t *testing.T) {
	m := newTestLifecycle(nil)
	s := satAt("sat", EarthRadiusKm+100, 0.01)
	s.Satellite.Command = model.CommandDeorbiting
	d := debrisAt("d", EarthRadiusKm+100.01, 0.01)

	below := StepResult{BelowReentry: true}
	out := m.Resolve(context.Background(), 1, []Step{{s, below}, {d, below}}, []Pair{collision(s, d)})

	want := []model.EventKind{model.EventCollision, model.EventDestroyed}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SignalsReturnSatelliteToIdle(t *testing.T) {
	m := newTestLifecycle(nil)
	done := satAt("done", 7000, 0.01)
	done.Satellite.Command = model.CommandManeuvering
	starved := satAt("starved", 7100, 0.01)
	starved.Satellite.Command = model.CommandManeuvering
	stuck := satAt("stuck", 7200, 0.01)
	stuck.Satellite.Command = model.CommandDeorbiting

	steps := []Step{
		{done, StepResult{Signal: SignalManeuverComplete}},
		{starved, StepResult{Signal: SignalManeuverFailure}},
		{stuck, StepResult{Signal: SignalDeorbitFailure}},
	}
	out := m.Resolve(context.Background(), 1, steps, nil)

	want := []model.EventKind{model.EventManeuverComplete, model.EventManeuverFailure, model.EventDeorbitFailure}
	if diff := cmp.Diff(want, eventKinds(out.Events)); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	for _, b := range []*model.Body{done, starved, stuck} {
		if b.Satellite.Command != model.CommandIdle {
			t.Fatalf("%s command = %v, want idle", b.ID, b.Satellite.Command)
		}
	}
}

func TestResolve_SequenceContinuesAcrossTicks(t *testing.T) {
	m := newTestLifecycle(nil)
	a := satAt("a", 7000, 0.01)
	b := debrisAt("b", 7003, 0.01)
	ca := Pair{A: a, B: b, Severity: model.SeverityCloseApproach, Distance: 3}

	first := m.Resolve(context.Background(), 1, nil, []Pair{ca})
	second := m.Resolve(context.Background(), 2, nil, []Pair{ca})
	if first.Events[0].Seq != 1 || second.Events[0].Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", first.Events[0].Seq, second.Events[0].Seq)
	}
}

func TestResolve_FragmentIDsAvoidExisting(t *testing.T) {
	m := newTestLifecycle(func(id string) bool { return id == "frag-1-0" })
	s := satAt("sat", 7000, 0.01)
	d := debrisAt("d", 7000.01, 0.01)

	out := m.Resolve(context.Background(), 1, nil, []Pair{collision(s, d)})
	if len(out.Spawned) == 0 {
		t.Fatalf("no fragments spawned")
	}
	if got := out.Spawned[0].ID; got != "frag-1-0.1" {
		t.Fatalf("first fragment id = %q, want frag-1-0.1", got)
	}
}
