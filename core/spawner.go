package core

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

var spawnNames = []string{
	"alpha", "beta", "gamma", "delta", "epsilon",
	"zeta", "eta", "theta", "iota", "kappa",
}

// DebrisSpawner injects natural debris with a probability that grows with
// elapsed ticks. It draws from its own seeded source, so two spawners with
// the same configuration produce the same debris.
type DebrisSpawner struct {
	cfg         SpawnConfig
	mu          float64
	earthRadius float64

	rng     *rand.Rand
	counter int
}

// NewDebrisSpawner builds a spawner from the engine configuration.
func NewDebrisSpawner(cfg Config) *DebrisSpawner {
	return &DebrisSpawner{
		cfg:         cfg.Spawn,
		mu:          cfg.Mu,
		earthRadius: cfg.EarthRadius,
		rng:         rand.New(rand.NewPCG(cfg.Spawn.Seed, cfg.Spawn.Seed^0x9e3779b97f4a7c15)),
	}
}

// Chance returns the spawn probability for the given tick.
func (s *DebrisSpawner) Chance(tick uint64) float64 {
	p := s.cfg.BaseChance + float64(tick)*s.cfg.Growth
	if s.cfg.MaxChance > 0 {
		p = math.Min(p, s.cfg.MaxChance)
	}
	return math.Min(p, 1)
}

// Maybe rolls for a new debris object at tick and returns it, or nil. exists
// reports IDs already in use.
func (s *DebrisSpawner) Maybe(tick uint64, exists func(string) bool) *model.Body {
	if !s.cfg.Enabled() {
		return nil
	}
	if s.rng.Float64() >= s.Chance(tick) {
		return nil
	}

	orbit := CircularOrbit{
		AltitudeKm:     s.cfg.MinAltitude + s.rng.Float64()*(s.cfg.MaxAltitude-s.cfg.MinAltitude),
		InclinationDeg: s.rng.Float64() * 180,
		PhaseDeg:       s.rng.Float64() * 360,
	}
	pos, vel := orbit.State(s.mu, s.earthRadius)

	size := model.SizeSmall
	switch roll := s.rng.IntN(100); {
	case roll >= 90:
		size = model.SizeLarge
	case roll >= 60:
		size = model.SizeMedium
	}

	name := spawnNames[s.rng.IntN(len(spawnNames))]
	id := s.nextID(name, exists)

	return &model.Body{
		ID:       id,
		Kind:     model.KindDebris,
		Position: pos,
		Velocity: vel,
		Radius:   size.Radius(),
		Debris: model.DebrisState{
			DecayRate: s.cfg.DecayRate,
			Origin:    model.OriginNatural,
		},
	}
}

func (s *DebrisSpawner) nextID(name string, exists func(string) bool) string {
	for {
		id := fmt.Sprintf("%s-%d", name, s.counter)
		s.counter++
		if exists == nil || !exists(id) {
			return id
		}
	}
}
