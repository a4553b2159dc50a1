package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// Step pairs a body with the outcome of propagating it this tick.
type Step struct {
	Body   *model.Body
	Result StepResult
}

// Outcome is what the lifecycle manager produced for one tick.
type Outcome struct {
	// Events are in emission order.
	Events []model.Event
	// Spawned are new collision-generated debris, not yet catalogued.
	Spawned []*model.Body
}

// LifecycleManager turns propagation signals and detected pairs into events
// and state transitions. It owns the event sequence counter of one run.
type LifecycleManager struct {
	fragmentCount     int
	fragmentRadius    float64
	fragmentSpeed     float64
	fragmentDecayRate float64
	sizeable          float64

	// exists reports whether an ID is already in use; fragment IDs avoid it.
	exists func(id string) bool
	log    logging.Logger

	seq uint64
}

// NewLifecycleManager builds a manager from cfg. exists is consulted when
// naming fragments.
func NewLifecycleManager(cfg Config, exists func(string) bool, log logging.Logger) *LifecycleManager {
	if log == nil {
		log = logging.Noop()
	}
	if exists == nil {
		exists = func(string) bool { return false }
	}
	return &LifecycleManager{
		fragmentCount:     cfg.FragmentCount,
		fragmentRadius:    cfg.FragmentRadius,
		fragmentSpeed:     cfg.FragmentSpeed,
		fragmentDecayRate: cfg.FragmentDecayRate,
		sizeable:          cfg.SizeableDebrisRadius,
		exists:            exists,
		log:               log,
	}
}

// Resolve applies one tick. Events are emitted in three passes: propagation
// signals in propagation order, then detected pairs in detector order, then
// reentries. Bodies are only marked here; removing them is the caller's job.
func (m *LifecycleManager) Resolve(ctx context.Context, tick uint64, steps []Step, pairs []Pair) Outcome {
	r := resolution{m: m, ctx: ctx, tick: tick, taken: make(map[string]bool)}

	for _, s := range steps {
		r.signal(s.Body, s.Result.Signal)
	}
	for _, p := range pairs {
		switch p.Severity {
		case model.SeverityCollision:
			r.collide(p)
		case model.SeverityCloseApproach:
			r.emit(model.EventCloseApproach, p.Severity, p.Distance, p.A.ID, p.B.ID)
		}
	}
	for _, s := range steps {
		if s.Result.BelowReentry && !s.Body.Terminal() {
			r.reenter(s.Body)
		}
	}
	return r.out
}

// resolution is the per-tick working state of Resolve.
type resolution struct {
	m    *LifecycleManager
	ctx  context.Context
	tick uint64
	out  Outcome
	// taken holds fragment IDs handed out this tick.
	taken map[string]bool
}

func (r *resolution) emit(kind model.EventKind, sev model.Severity, dist float64, ids ...string) model.Event {
	r.m.seq++
	ev := model.Event{
		Seq:          r.m.seq,
		Tick:         r.tick,
		Kind:         kind,
		Participants: ids,
		Severity:     sev,
		Distance:     dist,
	}
	r.out.Events = append(r.out.Events, ev)
	return ev
}

func (r *resolution) signal(b *model.Body, sig Signal) {
	sat := &b.Satellite
	switch sig {
	case SignalManeuverComplete:
		sat.Command = model.CommandIdle
		sat.Maneuver = model.ManeuverPlan{}
		r.emit(model.EventManeuverComplete, model.SeverityNone, 0, b.ID)
	case SignalManeuverFailure:
		sat.Command = model.CommandIdle
		sat.Maneuver = model.ManeuverPlan{}
		r.emit(model.EventManeuverFailure, model.SeverityNone, 0, b.ID)
		r.m.log.Info(r.ctx, "maneuver aborted: insufficient fuel",
			logging.String("satellite", b.ID), logging.Float("fuel", sat.Fuel))
	case SignalDeorbitFailure:
		sat.Command = model.CommandIdle
		r.emit(model.EventDeorbitFailure, model.SeverityNone, 0, b.ID)
		r.m.log.Info(r.ctx, "deorbit failed: insufficient fuel",
			logging.String("satellite", b.ID), logging.Float("fuel", sat.Fuel))
	}
}

// collide emits the Collision event, consumes both participants and spawns
// fragments if a newly consumed participant is big enough to break up.
// Participants already consumed earlier this tick stay consumed once.
func (r *resolution) collide(p Pair) {
	ev := r.emit(model.EventCollision, model.SeverityCollision, p.Distance, p.A.ID, p.B.ID)
	r.m.log.Info(r.ctx, "collision",
		logging.String("a", p.A.ID), logging.String("b", p.B.ID),
		logging.Float("distance_km", p.Distance), logging.Uint64("tick", r.tick))

	breakup := false
	for _, b := range []*model.Body{p.A, p.B} {
		if b.Terminal() {
			continue
		}
		switch b.Kind {
		case model.KindSatellite:
			b.Satellite.Health = model.HealthDestroyed
			b.Satellite.Command = model.CommandIdle
			b.Satellite.Maneuver = model.ManeuverPlan{}
			r.emit(model.EventDestroyed, model.SeverityCollision, 0, b.ID)
			breakup = true
		case model.KindDebris:
			b.Debris.Removed = true
			if b.Radius >= r.m.sizeable {
				breakup = true
			}
		}
	}
	if breakup {
		r.spawnFragments(ev.Seq, p.A, p.B)
	}
}

func (r *resolution) reenter(b *model.Body) {
	switch b.Kind {
	case model.KindSatellite:
		if b.Satellite.Command == model.CommandDeorbiting {
			b.Satellite.Deorbited = true
			b.Satellite.Command = model.CommandIdle
			r.emit(model.EventDeorbitSuccess, model.SeverityNone, 0, b.ID)
			r.m.log.Info(r.ctx, "deorbit complete", logging.String("satellite", b.ID), logging.Uint64("tick", r.tick))
			return
		}
		// Uncontrolled reentry.
		b.Satellite.Health = model.HealthDestroyed
		b.Satellite.Command = model.CommandIdle
		r.emit(model.EventDestroyed, model.SeverityNone, 0, b.ID)
		r.m.log.Warn(r.ctx, "satellite lost to uncontrolled reentry", logging.String("satellite", b.ID))
	case model.KindDebris:
		b.Debris.Removed = true
		r.emit(model.EventDebrisReentry, model.SeverityNone, 0, b.ID)
	}
}

// goldenAngle spaces fragment directions evenly on the unit sphere.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// spawnFragments places the configured number of fragments around the
// midpoint of a and b, moving away from it on Fibonacci-sphere directions.
func (r *resolution) spawnFragments(parent uint64, a, b *model.Body) {
	n := r.m.fragmentCount
	if n <= 0 {
		return
	}
	center := a.Position.Add(b.Position).Scale(0.5)
	mean := a.Velocity.Add(b.Velocity).Scale(0.5)
	offset := math.Max(2*r.m.fragmentRadius, 1e-3)

	for k := 0; k < n; k++ {
		y := 1 - 2*(float64(k)+0.5)/float64(n)
		ring := math.Sqrt(math.Max(0, 1-y*y))
		sinT, cosT := math.Sincos(float64(k) * goldenAngle)
		dir := model.Vec3{X: ring * cosT, Y: y, Z: ring * sinT}

		frag := &model.Body{
			ID:       r.fragmentID(parent, k),
			Kind:     model.KindDebris,
			Position: center.Add(dir.Scale(offset)),
			Velocity: mean.Add(dir.Scale(r.m.fragmentSpeed)),
			Radius:   r.m.fragmentRadius,
			Debris: model.DebrisState{
				DecayRate: r.m.fragmentDecayRate,
				Origin:    model.OriginCollision,
				Parent:    parent,
			},
		}
		r.out.Spawned = append(r.out.Spawned, frag)
	}
	r.m.log.Debug(r.ctx, "collision fragments spawned",
		logging.Uint64("collision_seq", parent), logging.Int("count", n))
}

func (r *resolution) fragmentID(parent uint64, k int) string {
	id := fmt.Sprintf("frag-%d-%d", parent, k)
	for n := 1; r.m.exists(id) || r.taken[id]; n++ {
		id = fmt.Sprintf("frag-%d-%d.%d", parent, k, n)
	}
	r.taken[id] = true
	return id
}
