package core

import (
	"math"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// EarthRadiusKm is the mean Earth radius used for altitude calculations
// (kilometres).
const EarthRadiusKm = 6371.0

// EarthMu is Earth's standard gravitational parameter in km³/s².
const EarthMu = 398600.4418

// CircularOrbit describes a circular orbit by altitude, inclination and the
// body's phase angle along the orbit. Angles are in degrees.
type CircularOrbit struct {
	AltitudeKm     float64
	InclinationDeg float64
	PhaseDeg       float64
	// Retrograde flips the direction of travel.
	Retrograde bool
}

// State returns the inertial position and velocity of a body on the orbit.
// The ascending node lies on the +X axis.
func (o CircularOrbit) State(mu, earthRadius float64) (pos, vel model.Vec3) {
	r := earthRadius + o.AltitudeKm
	speed := math.Sqrt(mu / r)
	if o.Retrograde {
		speed = -speed
	}

	inc := o.InclinationDeg * math.Pi / 180
	phase := o.PhaseDeg * math.Pi / 180
	sinI, cosI := math.Sincos(inc)
	sinU, cosU := math.Sincos(phase)

	// In-plane position (cosU, sinU) rotated about X by the inclination.
	pos = model.Vec3{
		X: r * cosU,
		Y: r * sinU * cosI,
		Z: r * sinU * sinI,
	}
	vel = model.Vec3{
		X: -speed * sinU,
		Y: speed * cosU * cosI,
		Z: speed * cosU * sinI,
	}
	return pos, vel
}

// OrbitalPeriod returns the period of a circular orbit of radius r
// (kilometres) in seconds.
func OrbitalPeriod(mu, r float64) float64 {
	return 2 * math.Pi * math.Sqrt(r*r*r/mu)
}

// SpecificEnergy returns the two-body specific orbital energy (km²/s²).
func SpecificEnergy(mu float64, pos, vel model.Vec3) float64 {
	r := pos.Norm()
	if r == 0 {
		return math.Inf(-1)
	}
	return vel.Dot(vel)/2 - mu/r
}

// PerigeeRadius returns the closest approach to the central body of the
// conic through pos and vel (kilometres). Radial trajectories return 0.
func PerigeeRadius(mu float64, pos, vel model.Vec3) float64 {
	h := pos.Cross(vel).Norm()
	if h == 0 {
		return 0
	}
	energy := SpecificEnergy(mu, pos, vel)
	ecc := math.Sqrt(math.Max(0, 1+2*energy*h*h/(mu*mu)))
	return h * h / mu / (1 + ecc)
}
