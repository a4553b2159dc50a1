package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// MotionModel advances a position and velocity by one fixed step.
type MotionModel interface {
	Advance(pos, vel model.Vec3, dt time.Duration) (model.Vec3, model.Vec3)
}

// StaticMotionModel leaves position and velocity unchanged.
type StaticMotionModel struct{}

// Advance for static motion returns its inputs.
func (StaticMotionModel) Advance(pos, vel model.Vec3, _ time.Duration) (model.Vec3, model.Vec3) {
	return pos, vel
}

// KeplerMotionModel integrates two-body motion about a point mass with a
// fixed-step symplectic scheme, so energy drift on bound orbits stays bounded.
type KeplerMotionModel struct {
	Mu     float64
	Scheme Integrator
}

// Advance steps pos and vel forward by dt.
func (m KeplerMotionModel) Advance(pos, vel model.Vec3, dt time.Duration) (model.Vec3, model.Vec3) {
	h := dt.Seconds()
	switch m.Scheme {
	case IntegratorSemiImplicitEuler:
		vel = vel.Add(m.accel(pos).Scale(h))
		pos = pos.Add(vel.Scale(h))
	default:
		vel = vel.Add(m.accel(pos).Scale(h / 2))
		pos = pos.Add(vel.Scale(h))
		vel = vel.Add(m.accel(pos).Scale(h / 2))
	}
	return pos, vel
}

func (m KeplerMotionModel) accel(pos model.Vec3) model.Vec3 {
	r := pos.Norm()
	if r == 0 {
		return model.Vec3{}
	}
	return pos.Scale(-m.Mu / (r * r * r))
}

// Signal is what a propagation step reports back to the lifecycle manager.
type Signal int

const (
	SignalNone Signal = iota
	// SignalManeuverComplete means the last scheduled maneuver burn fired.
	SignalManeuverComplete
	// SignalManeuverFailure means a maneuver burn lacked fuel.
	SignalManeuverFailure
	// SignalDeorbitFailure means a deorbit burn lacked fuel.
	SignalDeorbitFailure
)

// StepResult describes the outcome of propagating one body.
type StepResult struct {
	Signal Signal
	// BelowReentry is set when the body ended the step under the reentry
	// altitude.
	BelowReentry bool
	// FuelUsed is the fuel burned during the step.
	FuelUsed float64
}

// Propagator advances one body by one tick.
type Propagator interface {
	Step(b *model.Body, dt time.Duration) StepResult
}

// OrbitPropagator combines a MotionModel with the tick-level effects the
// simulation needs: satellite burns, debris decay and reentry detection.
type OrbitPropagator struct {
	Motion MotionModel

	Mu              float64
	EarthRadius     float64
	ReentryAltitude float64

	DeorbitDeltaV             float64
	DeorbitFuelPerTick        float64
	FuelPerDeltaV             float64
	StationKeepingFuelPerTick float64
}

// NewOrbitPropagator builds a propagator from the engine configuration. A nil
// motion selects Kepler motion with the configured integrator.
func NewOrbitPropagator(cfg Config, motion MotionModel) *OrbitPropagator {
	if motion == nil {
		motion = KeplerMotionModel{Mu: cfg.Mu, Scheme: cfg.integrator()}
	}
	return &OrbitPropagator{
		Motion:                    motion,
		Mu:                        cfg.Mu,
		EarthRadius:               cfg.EarthRadius,
		ReentryAltitude:           cfg.ReentryAltitude,
		DeorbitDeltaV:             cfg.DeorbitDeltaV,
		DeorbitFuelPerTick:        cfg.DeorbitFuelPerTick,
		FuelPerDeltaV:             cfg.FuelPerDeltaV,
		StationKeepingFuelPerTick: cfg.StationKeepingFuelPerTick,
	}
}

// Step propagates b in place. Destroyed satellites and removed debris are
// inert and left untouched.
func (p *OrbitPropagator) Step(b *model.Body, dt time.Duration) StepResult {
	var res StepResult
	if b.Terminal() {
		return res
	}

	if b.IsSatellite() {
		res = p.burn(b)
	}

	b.Position, b.Velocity = p.Motion.Advance(b.Position, b.Velocity, dt)

	if b.IsDebris() && b.Debris.DecayRate > 0 {
		r := b.Position.Norm()
		if r > 0 {
			b.Position = b.Position.Scale(math.Max(r-b.Debris.DecayRate, 0) / r)
		}
	}

	res.BelowReentry = b.Altitude(p.EarthRadius) < p.ReentryAltitude
	return res
}

// burn applies station keeping and the burn the satellite's command state
// asks for. A burn the fuel cannot pay for leaves the velocity unchanged.
func (p *OrbitPropagator) burn(b *model.Body) StepResult {
	var res StepResult
	sat := &b.Satellite

	if p.StationKeepingFuelPerTick > 0 && sat.Fuel > 0 {
		used := math.Min(sat.Fuel, p.StationKeepingFuelPerTick)
		sat.Fuel -= used
		res.FuelUsed += used
	}

	switch sat.Command {
	case model.CommandManeuvering:
		plan := &sat.Maneuver
		if plan.TicksLeft < 1 {
			plan.TicksLeft = 1
		}
		dv := plan.Remaining.Scale(1 / float64(plan.TicksLeft))
		cost := dv.Norm() * p.FuelPerDeltaV
		if !affordable(sat.Fuel, cost) {
			res.Signal = SignalManeuverFailure
			return res
		}
		b.Velocity = b.Velocity.Add(dv)
		sat.Fuel = math.Max(sat.Fuel-cost, 0)
		res.FuelUsed += cost
		plan.Remaining = plan.Remaining.Sub(dv)
		plan.TicksLeft--
		if plan.TicksLeft == 0 {
			res.Signal = SignalManeuverComplete
		}

	case model.CommandDeorbiting:
		if PerigeeRadius(p.Mu, b.Position, b.Velocity)-p.EarthRadius < p.ReentryAltitude {
			// Already on a reentry trajectory; coast.
			return res
		}
		if !affordable(sat.Fuel, p.DeorbitFuelPerTick) {
			res.Signal = SignalDeorbitFailure
			return res
		}
		speed := b.Velocity.Norm()
		dv := math.Min(p.DeorbitDeltaV, speed)
		b.Velocity = b.Velocity.Sub(b.Velocity.Unit().Scale(dv))
		sat.Fuel = math.Max(sat.Fuel-p.DeorbitFuelPerTick, 0)
		res.FuelUsed += p.DeorbitFuelPerTick
	}
	return res
}

// affordable reports whether a burn of the given cost can fire. An empty tank
// cannot fire any burn.
func affordable(fuel, cost float64) bool {
	return fuel > 0 && fuel >= cost
}
