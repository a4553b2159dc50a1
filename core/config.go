package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// ErrInvalidConfiguration is returned by Reset when the configuration cannot
// start a simulation. No tick runs with a rejected configuration.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Integrator selects the fixed-step scheme used by the propagator.
type Integrator string

const (
	// IntegratorVerlet is velocity Verlet (kick-drift-kick).
	IntegratorVerlet Integrator = "verlet"
	// IntegratorSemiImplicitEuler updates velocity first, then position.
	IntegratorSemiImplicitEuler Integrator = "semi-implicit-euler"
)

// DetectorKind selects the collision detector implementation.
type DetectorKind string

const (
	// DetectorPairwise compares every pair of bodies.
	DetectorPairwise DetectorKind = "pairwise"
	// DetectorGrid buckets bodies into cells first.
	DetectorGrid DetectorKind = "grid"
)

// SatelliteSpec describes one satellite of the starting roster. The initial
// state comes from TLE lines when present, otherwise from Orbit, otherwise
// from Position and Velocity.
type SatelliteSpec struct {
	ID       string
	Position model.Vec3
	Velocity model.Vec3
	Orbit    *CircularOrbit
	TLE1     string
	TLE2     string
	Radius   float64
	Fuel     float64
	Health   model.Health
}

// DebrisSpec describes one piece of debris of the starting roster.
type DebrisSpec struct {
	ID        string
	Position  model.Vec3
	Velocity  model.Vec3
	Orbit     *CircularOrbit
	TLE1      string
	TLE2      string
	Radius    float64
	DecayRate float64
}

// SpawnConfig controls the natural debris generator. A zero BaseChance and
// Growth disable it.
type SpawnConfig struct {
	// BaseChance is the spawn probability per tick at tick zero.
	BaseChance float64
	// Growth is added to the probability for every elapsed tick.
	Growth float64
	// MaxChance caps the probability.
	MaxChance float64
	// Seed makes the generator reproducible.
	Seed uint64
	// MinAltitude and MaxAltitude bound the shell new debris appears in (km).
	MinAltitude float64
	MaxAltitude float64
	// DecayRate is assigned to spawned debris (km per tick).
	DecayRate float64
}

// Enabled reports whether the spawner can ever produce debris.
func (s SpawnConfig) Enabled() bool {
	return s.BaseChance > 0 || s.Growth > 0
}

// Config is the complete engine configuration accepted by Reset.
type Config struct {
	// Tick is the simulated duration of one step.
	Tick time.Duration
	// Epoch is the simulated wall time of tick zero; TLE rosters are
	// propagated to it.
	Epoch time.Time
	// Mu is the central body's gravitational parameter (km³/s²).
	Mu float64
	// EarthRadius is used for altitudes (km).
	EarthRadius float64
	// Integrator picks the numerical scheme.
	Integrator Integrator

	// CollisionMargin is added to the sum of radii for the collision test (km).
	CollisionMargin float64
	// WarningMargin extends the collision threshold for close approaches (km).
	WarningMargin float64
	// DebrisDebrisCollisions enables collision checks between two debris.
	DebrisDebrisCollisions bool
	// Detector picks the detector implementation; GridCellSize is the
	// minimum cell edge for DetectorGrid (km).
	Detector     DetectorKind
	GridCellSize float64

	// FragmentCount is how many debris a qualifying collision spawns.
	FragmentCount int
	// FragmentRadius is the collision radius of each fragment (km).
	FragmentRadius float64
	// FragmentSpeed is the dispersal speed added to the mean velocity (km/s).
	FragmentSpeed float64
	// FragmentDecayRate is the decay assigned to fragments (km per tick).
	FragmentDecayRate float64
	// SizeableDebrisRadius is the radius from which debris spawns fragments.
	SizeableDebrisRadius float64

	// ReentryAltitude is the altitude below which bodies reenter (km).
	ReentryAltitude float64
	// DeorbitDeltaV is the retrograde impulse applied per deorbiting tick (km/s).
	DeorbitDeltaV float64
	// DeorbitFuelPerTick is the fuel consumed by each deorbit burn.
	DeorbitFuelPerTick float64
	// FuelPerDeltaV converts maneuver delta-v (km/s) into fuel.
	FuelPerDeltaV float64
	// StationKeepingFuelPerTick is burned by every live satellite each tick.
	StationKeepingFuelPerTick float64

	// ScoreDeltas maps event kinds to score changes. Missing kinds score zero.
	ScoreDeltas map[model.EventKind]float64
	// SurvivalReward is credited per active satellite at the end of a tick.
	SurvivalReward float64

	Spawn SpawnConfig

	Satellites []SatelliteSpec
	Debris     []DebrisSpec

	// Commands is a scripted operator plan. The engine never issues them
	// itself; drivers call CommandsAt before each tick.
	Commands []ScheduledCommand
}

// ScheduledCommand is a command to issue just before tick Tick runs, so it
// takes effect during that tick.
type ScheduledCommand struct {
	Tick      uint64
	Satellite string
	Command   model.Command
}

// CommandsAt returns the scripted commands for tick in declaration order.
func (c Config) CommandsAt(tick uint64) []ScheduledCommand {
	var due []ScheduledCommand
	for _, sc := range c.Commands {
		if sc.Tick == tick {
			due = append(due, sc)
		}
	}
	return due
}

// DefaultScoreDeltas returns the stock scoring policy.
func DefaultScoreDeltas() map[model.EventKind]float64 {
	return map[model.EventKind]float64{
		model.EventCloseApproach:  -1,
		model.EventCollision:      -100,
		model.EventDestroyed:      -50,
		model.EventDeorbitSuccess: 50,
		model.EventDeorbitFailure: -5,
	}
}

// DefaultConfig returns a configuration with an empty roster and the stock
// physical and scoring constants.
func DefaultConfig() Config {
	return Config{
		Tick:                 10 * time.Second,
		Epoch:                time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Mu:                   EarthMu,
		EarthRadius:          EarthRadiusKm,
		Integrator:           IntegratorVerlet,
		Detector:             DetectorPairwise,
		CollisionMargin:      0,
		WarningMargin:        5,
		FragmentCount:        3,
		FragmentRadius:       0.005,
		FragmentSpeed:        0.05,
		SizeableDebrisRadius: 0.02,
		ReentryAltitude:      120,
		DeorbitDeltaV:        0.01,
		DeorbitFuelPerTick:   1,
		FuelPerDeltaV:        100,
		ScoreDeltas:          DefaultScoreDeltas(),
	}
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfiguration for the first problem found.
func (c Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("%w: tick must be positive, got %s", ErrInvalidConfiguration, c.Tick)
	}
	if err := positive("mu", c.Mu); err != nil {
		return err
	}
	if err := positive("earth radius", c.EarthRadius); err != nil {
		return err
	}
	switch c.Integrator {
	case IntegratorVerlet, IntegratorSemiImplicitEuler, "":
	default:
		return fmt.Errorf("%w: unknown integrator %q", ErrInvalidConfiguration, c.Integrator)
	}
	switch c.Detector {
	case DetectorPairwise, DetectorGrid, "":
	default:
		return fmt.Errorf("%w: unknown detector %q", ErrInvalidConfiguration, c.Detector)
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"collision margin", c.CollisionMargin},
		{"warning margin", c.WarningMargin},
		{"grid cell size", c.GridCellSize},
		{"fragment radius", c.FragmentRadius},
		{"fragment speed", c.FragmentSpeed},
		{"fragment decay rate", c.FragmentDecayRate},
		{"sizeable debris radius", c.SizeableDebrisRadius},
		{"deorbit delta-v", c.DeorbitDeltaV},
		{"deorbit fuel per tick", c.DeorbitFuelPerTick},
		{"fuel per delta-v", c.FuelPerDeltaV},
		{"station keeping fuel", c.StationKeepingFuelPerTick},
	} {
		if err := nonNegative(f.name, f.v); err != nil {
			return err
		}
	}
	if c.FragmentCount < 0 {
		return fmt.Errorf("%w: fragment count must be >= 0, got %d", ErrInvalidConfiguration, c.FragmentCount)
	}
	if !finite(c.ReentryAltitude) {
		return fmt.Errorf("%w: reentry altitude must be finite", ErrInvalidConfiguration)
	}
	if !finite(c.SurvivalReward) {
		return fmt.Errorf("%w: survival reward must be finite", ErrInvalidConfiguration)
	}
	for kind, delta := range c.ScoreDeltas {
		if !finite(delta) {
			return fmt.Errorf("%w: score delta for %s must be finite", ErrInvalidConfiguration, kind)
		}
	}
	if err := c.Spawn.validate(); err != nil {
		return err
	}

	seen := make(map[string]string, len(c.Satellites)+len(c.Debris))
	claim := func(kind, id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: %s with empty id", ErrInvalidConfiguration, kind)
		}
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: id %q used by %s and %s", ErrInvalidConfiguration, id, prev, kind)
		}
		seen[id] = kind
		return nil
	}
	for _, s := range c.Satellites {
		if err := claim("satellite", s.ID); err != nil {
			return err
		}
		if err := nonNegative(fmt.Sprintf("satellite %q radius", s.ID), s.Radius); err != nil {
			return err
		}
		if err := nonNegative(fmt.Sprintf("satellite %q fuel", s.ID), s.Fuel); err != nil {
			return err
		}
		if s.Health == model.HealthDestroyed {
			return fmt.Errorf("%w: satellite %q cannot start destroyed", ErrInvalidConfiguration, s.ID)
		}
		if err := validateState(s.ID, s.Position, s.Velocity, s.Orbit, s.TLE1, s.TLE2); err != nil {
			return err
		}
	}
	for _, d := range c.Debris {
		if err := claim("debris", d.ID); err != nil {
			return err
		}
		if err := nonNegative(fmt.Sprintf("debris %q radius", d.ID), d.Radius); err != nil {
			return err
		}
		if err := nonNegative(fmt.Sprintf("debris %q decay rate", d.ID), d.DecayRate); err != nil {
			return err
		}
		if err := validateState(d.ID, d.Position, d.Velocity, d.Orbit, d.TLE1, d.TLE2); err != nil {
			return err
		}
	}
	for i, sc := range c.Commands {
		if sc.Tick == 0 {
			return fmt.Errorf("%w: command %d: tick must be >= 1", ErrInvalidConfiguration, i)
		}
		if seen[sc.Satellite] != "satellite" {
			return fmt.Errorf("%w: command %d: %q is not a satellite of the roster", ErrInvalidConfiguration, i, sc.Satellite)
		}
		switch sc.Command.Kind {
		case model.CmdStartManeuver:
			if !sc.Command.DeltaV.IsFinite() {
				return fmt.Errorf("%w: command %d: delta-v must be finite", ErrInvalidConfiguration, i)
			}
		case model.CmdRefuel:
			if !finite(sc.Command.Amount) || sc.Command.Amount <= 0 {
				return fmt.Errorf("%w: command %d: refuel amount must be positive", ErrInvalidConfiguration, i)
			}
		case model.CmdStartDeorbit, model.CmdCancel:
		default:
			return fmt.Errorf("%w: command %d: unknown kind %d", ErrInvalidConfiguration, i, sc.Command.Kind)
		}
	}
	return nil
}

func (s SpawnConfig) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"spawn base chance", s.BaseChance},
		{"spawn growth", s.Growth},
		{"spawn max chance", s.MaxChance},
		{"spawn decay rate", s.DecayRate},
	} {
		if err := nonNegative(f.name, f.v); err != nil {
			return err
		}
	}
	if s.BaseChance > 1 || s.MaxChance > 1 {
		return fmt.Errorf("%w: spawn chances must be <= 1", ErrInvalidConfiguration)
	}
	if s.Enabled() && s.MaxAltitude < s.MinAltitude {
		return fmt.Errorf("%w: spawn altitude band is inverted", ErrInvalidConfiguration)
	}
	return nil
}

func validateState(id string, pos, vel model.Vec3, orbit *CircularOrbit, tle1, tle2 string) error {
	if (tle1 == "") != (tle2 == "") {
		return fmt.Errorf("%w: %q needs both TLE lines", ErrInvalidConfiguration, id)
	}
	if orbit != nil {
		if !finite(orbit.AltitudeKm) || !finite(orbit.InclinationDeg) || !finite(orbit.PhaseDeg) {
			return fmt.Errorf("%w: %q orbit elements must be finite", ErrInvalidConfiguration, id)
		}
	}
	if !pos.IsFinite() || !vel.IsFinite() {
		return fmt.Errorf("%w: %q position and velocity must be finite", ErrInvalidConfiguration, id)
	}
	return nil
}

func positive(name string, v float64) error {
	if !finite(v) || v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfiguration, name, v)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if !finite(v) || v < 0 {
		return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfiguration, name, v)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// integrator returns the configured scheme, defaulting to Verlet.
func (c Config) integrator() Integrator {
	if c.Integrator == "" {
		return IntegratorVerlet
	}
	return c.Integrator
}

// detector builds the configured collision detector.
func (c Config) detector() Detector {
	th := ThresholdsFromConfig(c)
	if c.Detector == DetectorGrid {
		return GridDetector{Thresholds: th, MinCellSize: c.GridCellSize}
	}
	return PairwiseDetector{Thresholds: th}
}

// clone copies the slices and maps so later edits by the caller do not reach
// the running engine.
func (c Config) clone() Config {
	out := c
	out.Satellites = append([]SatelliteSpec(nil), c.Satellites...)
	out.Debris = append([]DebrisSpec(nil), c.Debris...)
	out.Commands = append([]ScheduledCommand(nil), c.Commands...)
	out.ScoreDeltas = make(map[model.EventKind]float64, len(c.ScoreDeltas))
	for k, v := range c.ScoreDeltas {
		out.ScoreDeltas[k] = v
	}
	return out
}
