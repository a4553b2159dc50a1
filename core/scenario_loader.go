package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// internal TOML shapes; unset pointer fields keep the DefaultConfig value.
type scenarioFile struct {
	Simulation simulationTOML `toml:"simulation"`
	Detection  detectionTOML  `toml:"detection"`
	Fragments  fragmentsTOML  `toml:"fragments"`
	Operations operationsTOML `toml:"operations"`
	Score      scoreTOML      `toml:"score"`
	Spawn      *spawnTOML     `toml:"spawn"`
	Satellites []bodyTOML     `toml:"satellite"`
	Debris     []bodyTOML     `toml:"debris"`
	Commands   []commandTOML  `toml:"command"`
}

type simulationTOML struct {
	Tick         string     `toml:"tick"`
	Epoch        *time.Time `toml:"epoch"`
	Mu           *float64   `toml:"mu"`
	EarthRadius  *float64   `toml:"earth_radius"`
	Integrator   string     `toml:"integrator"`
	Detector     string     `toml:"detector"`
	GridCellSize *float64   `toml:"grid_cell_size"`
}

type detectionTOML struct {
	CollisionMargin *float64 `toml:"collision_margin"`
	WarningMargin   *float64 `toml:"warning_margin"`
	DebrisDebris    *bool    `toml:"debris_debris"`
}

type fragmentsTOML struct {
	Count          *int     `toml:"count"`
	Radius         *float64 `toml:"radius"`
	Speed          *float64 `toml:"speed"`
	DecayRate      *float64 `toml:"decay_rate"`
	SizeableRadius *float64 `toml:"sizeable_radius"`
}

type operationsTOML struct {
	ReentryAltitude    *float64 `toml:"reentry_altitude"`
	DeorbitDeltaV      *float64 `toml:"deorbit_delta_v"`
	DeorbitFuelPerTick *float64 `toml:"deorbit_fuel_per_tick"`
	FuelPerDeltaV      *float64 `toml:"fuel_per_delta_v"`
	StationKeepingFuel *float64 `toml:"station_keeping_fuel"`
}

type scoreTOML struct {
	SurvivalReward *float64           `toml:"survival_reward"`
	Deltas         map[string]float64 `toml:"deltas"`
}

type spawnTOML struct {
	BaseChance  float64 `toml:"base_chance"`
	Growth      float64 `toml:"growth"`
	MaxChance   float64 `toml:"max_chance"`
	Seed        uint64  `toml:"seed"`
	MinAltitude float64 `toml:"min_altitude"`
	MaxAltitude float64 `toml:"max_altitude"`
	DecayRate   float64 `toml:"decay_rate"`
}

type orbitTOML struct {
	Altitude    float64 `toml:"altitude"`
	Inclination float64 `toml:"inclination"`
	Phase       float64 `toml:"phase"`
	Retrograde  bool    `toml:"retrograde"`
}

type bodyTOML struct {
	ID        string     `toml:"id"`
	Position  []float64  `toml:"position"`
	Velocity  []float64  `toml:"velocity"`
	Orbit     *orbitTOML `toml:"orbit"`
	TLE       []string   `toml:"tle"`
	Radius    *float64   `toml:"radius"`
	Size      string     `toml:"size"`
	Fuel      float64    `toml:"fuel"`
	Health    string     `toml:"health"`
	DecayRate float64    `toml:"decay_rate"`
}

type commandTOML struct {
	Tick      uint64    `toml:"tick"`
	Satellite string    `toml:"satellite"`
	Kind      string    `toml:"kind"`
	DeltaV    []float64 `toml:"delta_v"`
	Burns     int       `toml:"burns"`
	Amount    float64   `toml:"amount"`
}

// LoadScenario decodes a TOML scenario from r on top of DefaultConfig and
// validates the result.
func LoadScenario(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("LoadScenario: read failed: %w", err)
	}
	var f scenarioFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	cfg, err := f.config()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadScenarioFile opens path and calls LoadScenario.
func LoadScenarioFile(path string) (Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("LoadScenarioFile: %w", err)
	}
	defer fh.Close()
	return LoadScenario(fh)
}

func (f scenarioFile) config() (Config, error) {
	cfg := DefaultConfig()

	sim := f.Simulation
	if sim.Tick != "" {
		d, err := time.ParseDuration(sim.Tick)
		if err != nil {
			return Config{}, fmt.Errorf("%w: tick %q: %v", ErrInvalidConfiguration, sim.Tick, err)
		}
		cfg.Tick = d
	}
	if sim.Epoch != nil {
		cfg.Epoch = sim.Epoch.UTC()
	}
	setFloat(&cfg.Mu, sim.Mu)
	setFloat(&cfg.EarthRadius, sim.EarthRadius)
	if sim.Integrator != "" {
		cfg.Integrator = Integrator(strings.ToLower(sim.Integrator))
	}
	if sim.Detector != "" {
		cfg.Detector = DetectorKind(strings.ToLower(sim.Detector))
	}
	setFloat(&cfg.GridCellSize, sim.GridCellSize)

	setFloat(&cfg.CollisionMargin, f.Detection.CollisionMargin)
	setFloat(&cfg.WarningMargin, f.Detection.WarningMargin)
	if f.Detection.DebrisDebris != nil {
		cfg.DebrisDebrisCollisions = *f.Detection.DebrisDebris
	}

	if f.Fragments.Count != nil {
		cfg.FragmentCount = *f.Fragments.Count
	}
	setFloat(&cfg.FragmentRadius, f.Fragments.Radius)
	setFloat(&cfg.FragmentSpeed, f.Fragments.Speed)
	setFloat(&cfg.FragmentDecayRate, f.Fragments.DecayRate)
	setFloat(&cfg.SizeableDebrisRadius, f.Fragments.SizeableRadius)

	ops := f.Operations
	setFloat(&cfg.ReentryAltitude, ops.ReentryAltitude)
	setFloat(&cfg.DeorbitDeltaV, ops.DeorbitDeltaV)
	setFloat(&cfg.DeorbitFuelPerTick, ops.DeorbitFuelPerTick)
	setFloat(&cfg.FuelPerDeltaV, ops.FuelPerDeltaV)
	setFloat(&cfg.StationKeepingFuelPerTick, ops.StationKeepingFuel)

	setFloat(&cfg.SurvivalReward, f.Score.SurvivalReward)
	for name, delta := range f.Score.Deltas {
		kind, ok := model.ParseEventKind(name)
		if !ok {
			return Config{}, fmt.Errorf("%w: unknown event kind %q in score deltas", ErrInvalidConfiguration, name)
		}
		cfg.ScoreDeltas[kind] = delta
	}

	if s := f.Spawn; s != nil {
		cfg.Spawn = SpawnConfig{
			BaseChance:  s.BaseChance,
			Growth:      s.Growth,
			MaxChance:   s.MaxChance,
			Seed:        s.Seed,
			MinAltitude: s.MinAltitude,
			MaxAltitude: s.MaxAltitude,
			DecayRate:   s.DecayRate,
		}
	}

	for _, b := range f.Satellites {
		st, err := b.state()
		if err != nil {
			return Config{}, err
		}
		health, err := parseHealth(b.Health)
		if err != nil {
			return Config{}, fmt.Errorf("%w: satellite %q: %v", ErrInvalidConfiguration, b.ID, err)
		}
		cfg.Satellites = append(cfg.Satellites, SatelliteSpec{
			ID:       b.ID,
			Position: st.pos,
			Velocity: st.vel,
			Orbit:    st.orbit,
			TLE1:     st.tle1,
			TLE2:     st.tle2,
			Radius:   b.radius(),
			Fuel:     b.Fuel,
			Health:   health,
		})
	}
	for _, b := range f.Debris {
		st, err := b.state()
		if err != nil {
			return Config{}, err
		}
		cfg.Debris = append(cfg.Debris, DebrisSpec{
			ID:        b.ID,
			Position:  st.pos,
			Velocity:  st.vel,
			Orbit:     st.orbit,
			TLE1:      st.tle1,
			TLE2:      st.tle2,
			Radius:    b.radius(),
			DecayRate: b.DecayRate,
		})
	}
	for i, c := range f.Commands {
		cmd, err := c.command()
		if err != nil {
			return Config{}, fmt.Errorf("%w: command %d: %v", ErrInvalidConfiguration, i, err)
		}
		cfg.Commands = append(cfg.Commands, ScheduledCommand{
			Tick:      c.Tick,
			Satellite: c.Satellite,
			Command:   cmd,
		})
	}
	return cfg, nil
}

func (c commandTOML) command() (model.Command, error) {
	switch strings.ToLower(c.Kind) {
	case "start_maneuver", "maneuver":
		dv, err := vec3(c.Satellite, "delta_v", c.DeltaV)
		if err != nil {
			return model.Command{}, err
		}
		return model.StartManeuver(dv, c.Burns), nil
	case "start_deorbit", "deorbit":
		return model.StartDeorbit(), nil
	case "cancel":
		return model.Cancel(), nil
	case "refuel":
		return model.Refuel(c.Amount), nil
	default:
		return model.Command{}, fmt.Errorf("unknown command kind %q", c.Kind)
	}
}

type bodyState struct {
	pos, vel   model.Vec3
	orbit      *CircularOrbit
	tle1, tle2 string
}

func (b bodyTOML) state() (bodyState, error) {
	var st bodyState
	var err error
	if st.pos, err = vec3(b.ID, "position", b.Position); err != nil {
		return st, err
	}
	if st.vel, err = vec3(b.ID, "velocity", b.Velocity); err != nil {
		return st, err
	}
	if b.Orbit != nil {
		st.orbit = &CircularOrbit{
			AltitudeKm:     b.Orbit.Altitude,
			InclinationDeg: b.Orbit.Inclination,
			PhaseDeg:       b.Orbit.Phase,
			Retrograde:     b.Orbit.Retrograde,
		}
	}
	switch len(b.TLE) {
	case 0:
	case 2:
		st.tle1, st.tle2 = b.TLE[0], b.TLE[1]
	default:
		return st, fmt.Errorf("%w: %q: tle needs exactly two lines, got %d", ErrInvalidConfiguration, b.ID, len(b.TLE))
	}
	return st, nil
}

// radius prefers an explicit radius over the size class.
func (b bodyTOML) radius() float64 {
	if b.Radius != nil {
		return *b.Radius
	}
	return model.SizeClass(strings.ToLower(b.Size)).Radius()
}

func vec3(id, field string, v []float64) (model.Vec3, error) {
	switch len(v) {
	case 0:
		return model.Vec3{}, nil
	case 3:
		return model.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return model.Vec3{}, fmt.Errorf("%w: %q: %s needs 3 components, got %d", ErrInvalidConfiguration, id, field, len(v))
	}
}

func parseHealth(s string) (model.Health, error) {
	switch strings.ToLower(s) {
	case "", "nominal":
		return model.HealthNominal, nil
	case "damaged":
		return model.HealthDamaged, nil
	case "destroyed":
		return model.HealthDestroyed, nil
	default:
		return 0, fmt.Errorf("unknown health %q", s)
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
