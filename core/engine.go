package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/debris-avoidance-sim/catalog"
	"github.com/signalsfoundry/debris-avoidance-sim/internal/logging"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// ErrInvalidCommand is returned by IssueCommand for unknown or destroyed
// satellites and malformed commands. A rejected command changes nothing.
var ErrInvalidCommand = errors.New("invalid command")

const tracerName = "github.com/signalsfoundry/debris-avoidance-sim/core"

// Stats aggregates the population and cumulative event counts of a run.
type Stats struct {
	ActiveSatellites int
	ActiveDebris     int

	Collisions       int
	CloseApproaches  int
	Destroyed        int
	Deorbited        int
	DeorbitFailures  int
	ManeuversDone    int
	ManeuversFailed  int
	FragmentsSpawned int
	DebrisSpawned    int
	DebrisReentered  int
}

// Snapshot is the immutable view of the world after a tick. It shares no
// memory with the engine.
type Snapshot struct {
	Tick    uint64
	SimTime time.Time
	Elapsed time.Duration

	Satellites []model.Body
	Debris     []model.Body

	// Events are the events emitted during this tick, in emission order.
	Events []model.Event
	Score  float64
	// ScoreEntries are the score changes applied during this tick.
	ScoreEntries []ScoreEntry

	Stats Stats
	// MissionOver is set once every satellite of a non-empty roster has been
	// destroyed or deorbited.
	MissionOver bool
}

// EngineMetricsRecorder receives per-tick measurements.
type EngineMetricsRecorder interface {
	ObserveTick(d time.Duration)
	RecordEvents(events []model.Event)
	SetPopulation(satellites, debris int)
	SetScore(score float64)
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetricsRecorder wires a metrics recorder into the engine.
func WithMetricsRecorder(m EngineMetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMotionModel overrides the orbital motion model. Nil restores Kepler
// motion with the configured integrator.
func WithMotionModel(m MotionModel) EngineOption {
	return func(e *Engine) {
		e.motion = m
	}
}

// WithDetector overrides the configured collision detector.
func WithDetector(d Detector) EngineOption {
	return func(e *Engine) {
		e.detectorOverride = d
	}
}

// WithPropagator overrides the per-body propagator built from the
// configuration. The motion model option is ignored when it is set.
func WithPropagator(p Propagator) EngineOption {
	return func(e *Engine) {
		e.propagatorOverride = p
	}
}

// WithTracer sets the tracer used for tick spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

type queuedCommand struct {
	id  string
	cmd model.Command
}

// Engine owns the simulated world and advances it one tick at a time. All
// methods are safe for concurrent use; ticks are serialized.
type Engine struct {
	mu sync.Mutex

	cfg Config

	satellites *catalog.Catalog
	debris     *catalog.Catalog

	propagator Propagator
	detector   Detector
	lifecycle  *LifecycleManager
	score      *ScoreTracker
	spawner    *DebrisSpawner

	pending []queuedCommand
	tick    uint64
	stats   Stats
	roster  int

	log                logging.Logger
	metrics            EngineMetricsRecorder
	tracer             trace.Tracer
	motion             MotionModel
	detectorOverride   Detector
	propagatorOverride Propagator
	tickListeners      []func(Snapshot)
}

// NewEngine builds an engine and resets it to cfg.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Reset(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// RegisterTickListener adds fn to the listeners called with every snapshot
// Tick produces. Listeners run on the ticking goroutine after the engine lock
// is released.
func (e *Engine) RegisterTickListener(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickListeners = append(e.tickListeners, fn)
}

// Reset replaces the world with the roster of cfg and clears the tick
// counter, score and statistics. On error the previous world is kept.
func (e *Engine) Reset(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.clone()

	sats := catalog.New()
	for _, spec := range cfg.Satellites {
		b, err := satelliteFromSpec(cfg, spec)
		if err != nil {
			return err
		}
		if err := sats.Add(b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
	}
	debris := catalog.New()
	for _, spec := range cfg.Debris {
		b, err := debrisFromSpec(cfg, spec)
		if err != nil {
			return err
		}
		if err := debris.Add(b); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = cfg
	e.satellites = sats
	e.debris = debris
	e.propagator = e.propagatorOverride
	if e.propagator == nil {
		e.propagator = NewOrbitPropagator(cfg, e.motion)
	}
	e.detector = e.detectorOverride
	if e.detector == nil {
		e.detector = cfg.detector()
	}
	e.lifecycle = NewLifecycleManager(cfg, e.idInUse, e.log)
	e.score = NewScoreTracker(cfg)
	e.spawner = NewDebrisSpawner(cfg)
	e.pending = nil
	e.tick = 0
	e.roster = sats.Len()
	e.stats = Stats{ActiveSatellites: sats.Len(), ActiveDebris: debris.Len()}

	if e.metrics != nil {
		e.metrics.SetPopulation(sats.Len(), debris.Len())
		e.metrics.SetScore(0)
	}
	e.log.Info(context.Background(), "simulation reset",
		logging.Int("satellites", sats.Len()),
		logging.Int("debris", debris.Len()),
		logging.Duration("tick", cfg.Tick),
		logging.String("integrator", string(cfg.integrator())),
	)
	return nil
}

func satelliteFromSpec(cfg Config, spec SatelliteSpec) (*model.Body, error) {
	pos, vel, err := initialState(cfg, spec.ID, spec.Position, spec.Velocity, spec.Orbit, spec.TLE1, spec.TLE2)
	if err != nil {
		return nil, err
	}
	return &model.Body{
		ID:       spec.ID,
		Kind:     model.KindSatellite,
		Position: pos,
		Velocity: vel,
		Radius:   spec.Radius,
		Satellite: model.SatelliteState{
			Fuel:        spec.Fuel,
			InitialFuel: spec.Fuel,
			Health:      spec.Health,
		},
	}, nil
}

func debrisFromSpec(cfg Config, spec DebrisSpec) (*model.Body, error) {
	pos, vel, err := initialState(cfg, spec.ID, spec.Position, spec.Velocity, spec.Orbit, spec.TLE1, spec.TLE2)
	if err != nil {
		return nil, err
	}
	return &model.Body{
		ID:       spec.ID,
		Kind:     model.KindDebris,
		Position: pos,
		Velocity: vel,
		Radius:   spec.Radius,
		Debris: model.DebrisState{
			DecayRate: spec.DecayRate,
			Origin:    model.OriginNatural,
		},
	}, nil
}

// initialState resolves a roster entry's state vectors. TLE lines win over
// orbital elements, which win over explicit vectors.
func initialState(cfg Config, id string, pos, vel model.Vec3, orbit *CircularOrbit, tle1, tle2 string) (model.Vec3, model.Vec3, error) {
	switch {
	case tle1 != "":
		p, v, err := StateFromTLE(tle1, tle2, cfg.Epoch)
		if err != nil {
			return model.Vec3{}, model.Vec3{}, fmt.Errorf("%w: %q: %v", ErrInvalidConfiguration, id, err)
		}
		return p, v, nil
	case orbit != nil:
		p, v := orbit.State(cfg.Mu, cfg.EarthRadius)
		return p, v, nil
	default:
		return pos, vel, nil
	}
}

// idInUse is handed to the lifecycle manager and spawner. Callers hold e.mu.
func (e *Engine) idInUse(id string) bool {
	return e.satellites.Has(id) || e.debris.Has(id)
}

// IssueCommand validates cmd and queues it for satellite id. Queued commands
// take effect at the start of the next tick, in issue order.
func (e *Engine) IssueCommand(id string, cmd model.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.satellites.Get(id)
	if b == nil {
		if e.debris.Has(id) {
			return fmt.Errorf("%w: %q is debris", ErrInvalidCommand, id)
		}
		return fmt.Errorf("%w: unknown satellite %q", ErrInvalidCommand, id)
	}
	if b.Terminal() {
		return fmt.Errorf("%w: satellite %q is no longer operational", ErrInvalidCommand, id)
	}

	switch cmd.Kind {
	case model.CmdStartManeuver:
		if !cmd.DeltaV.IsFinite() {
			return fmt.Errorf("%w: maneuver delta-v must be finite", ErrInvalidCommand)
		}
		if cmd.Ticks < 1 {
			cmd.Ticks = 1
		}
	case model.CmdRefuel:
		if !finite(cmd.Amount) || cmd.Amount <= 0 {
			return fmt.Errorf("%w: refuel amount must be positive, got %v", ErrInvalidCommand, cmd.Amount)
		}
	case model.CmdStartDeorbit, model.CmdCancel:
	default:
		return fmt.Errorf("%w: unknown command kind %d", ErrInvalidCommand, cmd.Kind)
	}

	e.pending = append(e.pending, queuedCommand{id: id, cmd: cmd})
	return nil
}

func (e *Engine) applyCommands(ctx context.Context) {
	for _, q := range e.pending {
		b := e.satellites.Get(q.id)
		if b == nil || b.Terminal() {
			continue
		}
		sat := &b.Satellite
		switch q.cmd.Kind {
		case model.CmdStartManeuver:
			sat.Command = model.CommandManeuvering
			sat.Maneuver = model.ManeuverPlan{Remaining: q.cmd.DeltaV, TicksLeft: q.cmd.Ticks}
		case model.CmdStartDeorbit:
			sat.Command = model.CommandDeorbiting
			sat.Maneuver = model.ManeuverPlan{}
		case model.CmdCancel:
			sat.Command = model.CommandIdle
			sat.Maneuver = model.ManeuverPlan{}
		case model.CmdRefuel:
			sat.Fuel += q.cmd.Amount
			sat.InitialFuel = math.Max(sat.InitialFuel, sat.Fuel)
		}
		e.log.Debug(ctx, "command applied",
			logging.String("satellite", q.id),
			logging.String("command", q.cmd.Kind.String()),
		)
	}
	e.pending = nil
}

// Tick advances the world by one fixed step and returns the resulting
// snapshot. The order within a tick is: queued commands, propagation
// (satellites then debris, in catalog order), natural debris spawning,
// collision detection, lifecycle resolution, removal of destroyed bodies and
// scoring.
func (e *Engine) Tick(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	snap, listeners := e.tickLocked(ctx)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

func (e *Engine) tickLocked(ctx context.Context) (Snapshot, []func(Snapshot)) {
	start := time.Now()
	e.tick++
	tick := e.tick

	ctx, span := e.tracer.Start(ctx, "engine.Tick",
		trace.WithAttributes(attribute.Int64("sim.tick", int64(tick))))
	defer span.End()

	e.applyCommands(ctx)

	sats := e.satellites.List()
	debris := e.debris.List()
	bodies := make([]*model.Body, 0, len(sats)+len(debris))
	bodies = append(bodies, sats...)
	bodies = append(bodies, debris...)

	steps := make([]Step, 0, len(bodies))
	for _, b := range bodies {
		steps = append(steps, Step{Body: b, Result: e.propagator.Step(b, e.cfg.Tick)})
	}

	if spawned := e.spawner.Maybe(tick, e.idInUse); spawned != nil {
		if err := e.debris.Add(spawned); err != nil {
			e.log.Warn(ctx, "discarding spawned debris", logging.Err(err))
		} else {
			bodies = append(bodies, spawned)
			e.stats.DebrisSpawned++
			e.log.Debug(ctx, "natural debris spawned",
				logging.String("debris", spawned.ID),
				logging.Float("radius_km", spawned.Radius),
			)
		}
	}

	pairs := e.detector.Detect(bodies)
	out := e.lifecycle.Resolve(ctx, tick, steps, pairs)

	for _, frag := range out.Spawned {
		if err := e.debris.Add(frag); err != nil {
			e.log.Warn(ctx, "discarding fragment", logging.String("debris", frag.ID), logging.Err(err))
			continue
		}
		e.stats.FragmentsSpawned++
	}

	active := 0
	for _, b := range e.satellites.List() {
		if !b.Terminal() {
			active++
		}
	}
	entries := e.score.Apply(tick, out.Events, active)

	e.satellites.Sweep((*model.Body).Terminal)
	e.debris.Sweep((*model.Body).Terminal)

	e.countEvents(out.Events)
	e.stats.ActiveSatellites = e.satellites.Len()
	e.stats.ActiveDebris = e.debris.Len()

	snap := e.snapshotLocked(out.Events, entries)

	span.SetAttributes(
		attribute.Int("sim.events", len(out.Events)),
		attribute.Int("sim.satellites", snap.Stats.ActiveSatellites),
		attribute.Int("sim.debris", snap.Stats.ActiveDebris),
		attribute.Float64("sim.score", snap.Score),
	)
	if e.metrics != nil {
		e.metrics.ObserveTick(time.Since(start))
		e.metrics.RecordEvents(out.Events)
		e.metrics.SetPopulation(snap.Stats.ActiveSatellites, snap.Stats.ActiveDebris)
		e.metrics.SetScore(snap.Score)
	}
	if snap.MissionOver && hasSatelliteExit(out.Events) {
		e.log.Info(ctx, "mission over", logging.Uint64("tick", tick), logging.Float("score", snap.Score))
	}

	listeners := append([]func(Snapshot){}, e.tickListeners...)
	return snap, listeners
}

func hasSatelliteExit(events []model.Event) bool {
	for _, ev := range events {
		if ev.Kind == model.EventDestroyed || ev.Kind == model.EventDeorbitSuccess {
			return true
		}
	}
	return false
}

func (e *Engine) countEvents(events []model.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case model.EventCollision:
			e.stats.Collisions++
		case model.EventCloseApproach:
			e.stats.CloseApproaches++
		case model.EventDestroyed:
			e.stats.Destroyed++
		case model.EventDeorbitSuccess:
			e.stats.Deorbited++
		case model.EventDeorbitFailure:
			e.stats.DeorbitFailures++
		case model.EventManeuverComplete:
			e.stats.ManeuversDone++
		case model.EventManeuverFailure:
			e.stats.ManeuversFailed++
		case model.EventDebrisReentry:
			e.stats.DebrisReentered++
		}
	}
}

// Snapshot returns the current world without advancing it. Events and score
// entries are empty.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(nil, nil)
}

func (e *Engine) snapshotLocked(events []model.Event, entries []ScoreEntry) Snapshot {
	evs := make([]model.Event, len(events))
	for i, ev := range events {
		ev.Participants = append([]string(nil), ev.Participants...)
		evs[i] = ev
	}
	elapsed := time.Duration(e.tick) * e.cfg.Tick
	return Snapshot{
		Tick:         e.tick,
		SimTime:      e.cfg.Epoch.Add(elapsed),
		Elapsed:      elapsed,
		Satellites:   e.satellites.Snapshot(),
		Debris:       e.debris.Snapshot(),
		Events:       evs,
		Score:        e.score.Score(),
		ScoreEntries: append([]ScoreEntry{}, entries...),
		Stats:        e.stats,
		MissionOver:  e.roster > 0 && e.satellites.Len() == 0,
	}
}

// Score returns the running total.
func (e *Engine) Score() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score.Score()
}

// ScoreLog returns every score change of the run, oldest first.
func (e *Engine) ScoreLog() []ScoreEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score.Log()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.clone()
}
