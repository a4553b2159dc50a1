package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

func TestCircularOrbit_StateIsCircular(t *testing.T) {
	for _, orbit := range []CircularOrbit{
		{AltitudeKm: 400},
		{AltitudeKm: 550, InclinationDeg: 53, PhaseDeg: 120},
		{AltitudeKm: 800, InclinationDeg: 98, PhaseDeg: 270, Retrograde: true},
	} {
		pos, vel := orbit.State(EarthMu, EarthRadiusKm)
		r := EarthRadiusKm + orbit.AltitudeKm

		if math.Abs(pos.Norm()-r) > 1e-9 {
			t.Errorf("%+v: |r| = %v, want %v", orbit, pos.Norm(), r)
		}
		if want := math.Sqrt(EarthMu / r); math.Abs(vel.Norm()-want) > 1e-12 {
			t.Errorf("%+v: |v| = %v, want %v", orbit, vel.Norm(), want)
		}
		if math.Abs(pos.Dot(vel)) > 1e-6 {
			t.Errorf("%+v: velocity not perpendicular to radius", orbit)
		}
		if math.Abs(PerigeeRadius(EarthMu, pos, vel)-r) > 1e-6 {
			t.Errorf("%+v: perigee %v, want %v", orbit, PerigeeRadius(EarthMu, pos, vel), r)
		}
	}
}

func TestCircularOrbit_RetrogradeReversesMotion(t *testing.T) {
	pro := CircularOrbit{AltitudeKm: 500, InclinationDeg: 30, PhaseDeg: 45}
	retro := pro
	retro.Retrograde = true

	p1, v1 := pro.State(EarthMu, EarthRadiusKm)
	p2, v2 := retro.State(EarthMu, EarthRadiusKm)
	if p1 != p2 {
		t.Fatalf("retrograde moved the position: %+v vs %+v", p1, p2)
	}
	if v1.Add(v2).Norm() > 1e-12 {
		t.Fatalf("retrograde velocity %+v is not the reverse of %+v", v2, v1)
	}
}

func TestOrbitalPeriod_LowEarthOrbit(t *testing.T) {
	// Roughly 92.5 minutes at ISS altitude.
	got := OrbitalPeriod(EarthMu, EarthRadiusKm+420) / 60
	if got < 92 || got > 93.5 {
		t.Fatalf("period = %.2f min, want ~92.5", got)
	}
}

func TestPerigeeRadius_RadialTrajectory(t *testing.T) {
	pos := model.Vec3{X: 7000}
	vel := model.Vec3{X: -1}
	if got := PerigeeRadius(EarthMu, pos, vel); got != 0 {
		t.Fatalf("radial perigee = %v, want 0", got)
	}
}

func TestPerigeeRadius_AfterRetrogradeBurn(t *testing.T) {
	orbit := CircularOrbit{AltitudeKm: 500}
	pos, vel := orbit.State(EarthMu, EarthRadiusKm)
	vel = vel.Scale(0.99)

	rp := PerigeeRadius(EarthMu, pos, vel)
	if rp >= pos.Norm() {
		t.Fatalf("perigee %v not below burn radius %v", rp, pos.Norm())
	}
	if SpecificEnergy(EarthMu, pos, vel) >= 0 {
		t.Fatalf("orbit became unbound")
	}
}
