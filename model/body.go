package model

// Kind identifies which payload of a Body is meaningful.
type Kind int

const (
	KindSatellite Kind = iota
	KindDebris
)

func (k Kind) String() string {
	switch k {
	case KindSatellite:
		return "satellite"
	case KindDebris:
		return "debris"
	default:
		return "unknown"
	}
}

// Health is the operational condition of a satellite.
type Health int

const (
	HealthNominal Health = iota
	HealthDamaged
	HealthDestroyed
)

func (h Health) String() string {
	switch h {
	case HealthNominal:
		return "nominal"
	case HealthDamaged:
		return "damaged"
	case HealthDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CommandState is what a satellite is currently doing.
type CommandState int

const (
	CommandIdle CommandState = iota
	CommandManeuvering
	CommandDeorbiting
)

func (c CommandState) String() string {
	switch c {
	case CommandIdle:
		return "idle"
	case CommandManeuvering:
		return "maneuvering"
	case CommandDeorbiting:
		return "deorbiting"
	default:
		return "unknown"
	}
}

// FuelStatus is a coarse classification of a satellite's remaining fuel.
type FuelStatus int

const (
	FuelNominal FuelStatus = iota
	FuelWarning
	FuelCritical
)

func (f FuelStatus) String() string {
	switch f {
	case FuelNominal:
		return "nominal"
	case FuelWarning:
		return "warning"
	case FuelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// fuelWarningFraction is the share of the initial load below which fuel is
// reported as a warning.
const fuelWarningFraction = 0.2

// Origin records where a piece of debris came from.
type Origin int

const (
	OriginNatural Origin = iota
	OriginCollision
)

func (o Origin) String() string {
	switch o {
	case OriginNatural:
		return "natural"
	case OriginCollision:
		return "collision-generated"
	default:
		return "unknown"
	}
}

// ManeuverPlan is an in-progress velocity change split over a number of ticks.
type ManeuverPlan struct {
	// Remaining is the part of the requested delta-v not yet applied (km/s).
	Remaining Vec3
	// TicksLeft is how many burns are still scheduled.
	TicksLeft int
}

// SatelliteState is the payload carried by satellites.
type SatelliteState struct {
	Fuel        float64
	InitialFuel float64
	Health      Health
	Command     CommandState
	Maneuver    ManeuverPlan
	// Deorbited is set once a deorbit completed; the satellite then leaves
	// the fleet.
	Deorbited bool
}

// FuelStatus classifies the remaining fuel relative to the initial load.
func (s SatelliteState) FuelStatus() FuelStatus {
	switch {
	case s.Fuel <= 0:
		return FuelCritical
	case s.InitialFuel > 0 && s.Fuel < s.InitialFuel*fuelWarningFraction:
		return FuelWarning
	default:
		return FuelNominal
	}
}

// DebrisState is the payload carried by debris.
type DebrisState struct {
	// DecayRate is the altitude lost per tick in kilometres.
	DecayRate float64
	Origin    Origin
	// Parent is the sequence number of the collision event that produced a
	// collision-generated fragment, zero otherwise.
	Parent  uint64
	Removed bool
}

// Body is any object in orbit. Kinematic fields are shared; Satellite and
// Debris hold the variant payload selected by Kind.
type Body struct {
	ID       string
	Kind     Kind
	Position Vec3
	Velocity Vec3
	// Radius is the collision radius in kilometres.
	Radius float64

	Satellite SatelliteState
	Debris    DebrisState
}

// IsSatellite reports whether b is a satellite.
func (b *Body) IsSatellite() bool { return b.Kind == KindSatellite }

// IsDebris reports whether b is debris.
func (b *Body) IsDebris() bool { return b.Kind == KindDebris }

// Terminal reports whether the body reached a state in which it leaves the
// active collections at the end of the tick.
func (b *Body) Terminal() bool {
	switch b.Kind {
	case KindSatellite:
		return b.Satellite.Health == HealthDestroyed || b.Satellite.Deorbited
	case KindDebris:
		return b.Debris.Removed
	default:
		return false
	}
}

// Altitude returns the height above a spherical Earth of the given radius.
func (b *Body) Altitude(earthRadius float64) float64 {
	return b.Position.Norm() - earthRadius
}

// SizeClass names the debris size buckets used by scenario files.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Radius returns the collision radius for the size class in kilometres.
// Unknown classes fall back to small.
func (c SizeClass) Radius() float64 {
	switch c {
	case SizeMedium:
		return 0.025
	case SizeLarge:
		return 0.040
	default:
		return 0.015
	}
}
