package core

import (
	"cmp"
	"math"
	"slices"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// Pair is an unordered pair of bodies found in danger. A precedes B in the
// slice handed to the detector.
type Pair struct {
	A, B     *model.Body
	Severity model.Severity
	Distance float64
}

// Detector finds pairs in danger among the active bodies. Implementations
// must report pairs in the order of their first, then second, index in the
// input slice so that a fixed ordering always yields the same result.
type Detector interface {
	Detect(bodies []*model.Body) []Pair
}

// Thresholds holds the classification rule shared by every detector.
type Thresholds struct {
	// CollisionMargin is added to the sum of radii.
	CollisionMargin float64
	// WarningMargin extends the collision threshold for close approaches.
	WarningMargin float64
	// DebrisDebris enables collision checks between two debris. Close
	// approaches are only reported when a satellite is involved.
	DebrisDebris bool
}

// ThresholdsFromConfig extracts the detection rule from cfg.
func ThresholdsFromConfig(cfg Config) Thresholds {
	return Thresholds{
		CollisionMargin: cfg.CollisionMargin,
		WarningMargin:   cfg.WarningMargin,
		DebrisDebris:    cfg.DebrisDebrisCollisions,
	}
}

// Classify grades the pair (a, b). The collision boundary is inclusive.
func (t Thresholds) Classify(a, b *model.Body) (model.Severity, float64) {
	if a.Terminal() || b.Terminal() {
		return model.SeverityNone, 0
	}
	satInvolved := a.IsSatellite() || b.IsSatellite()
	if !satInvolved && !t.DebrisDebris {
		return model.SeverityNone, 0
	}

	d := a.Position.DistanceTo(b.Position)
	collide := a.Radius + b.Radius + t.CollisionMargin
	switch {
	case d <= collide:
		return model.SeverityCollision, d
	case satInvolved && d <= collide+t.WarningMargin:
		return model.SeverityCloseApproach, d
	default:
		return model.SeverityNone, d
	}
}

// reach is the largest centre distance at which two bodies of radius
// maxRadius can still be reported.
func (t Thresholds) reach(maxRadius float64) float64 {
	return 2*maxRadius + t.CollisionMargin + t.WarningMargin
}

// PairwiseDetector checks every pair. O(n²), which is fine for fleets of a
// few hundred bodies.
type PairwiseDetector struct {
	Thresholds
}

// Detect implements Detector.
func (d PairwiseDetector) Detect(bodies []*model.Body) []Pair {
	var pairs []Pair
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			sev, dist := d.Classify(bodies[i], bodies[j])
			if sev == model.SeverityNone {
				continue
			}
			pairs = append(pairs, Pair{A: bodies[i], B: bodies[j], Severity: sev, Distance: dist})
		}
	}
	return pairs
}

// GridDetector buckets bodies into cubic cells and only compares bodies in
// neighbouring cells. It reports exactly what PairwiseDetector reports.
type GridDetector struct {
	Thresholds
	// MinCellSize is a lower bound on the cell edge (km). The edge is never
	// smaller than the largest interaction distance among the bodies.
	MinCellSize float64
}

type cellKey struct{ x, y, z int64 }

// Detect implements Detector.
func (d GridDetector) Detect(bodies []*model.Body) []Pair {
	if len(bodies) < 2 {
		return nil
	}

	maxRadius := 0.0
	for _, b := range bodies {
		maxRadius = math.Max(maxRadius, b.Radius)
	}
	cell := math.Max(d.reach(maxRadius), d.MinCellSize)
	if cell <= 0 {
		// Only coincident points can interact; any positive edge works.
		cell = 1
	}

	keyOf := func(p model.Vec3) cellKey {
		return cellKey{
			x: int64(math.Floor(p.X / cell)),
			y: int64(math.Floor(p.Y / cell)),
			z: int64(math.Floor(p.Z / cell)),
		}
	}
	grid := make(map[cellKey][]int, len(bodies))
	keys := make([]cellKey, len(bodies))
	for i, b := range bodies {
		k := keyOf(b.Position)
		keys[i] = k
		grid[k] = append(grid[k], i)
	}

	type candidate struct{ i, j int }
	var candidates []candidate
	for i := range bodies {
		k := keys[i]
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, j := range grid[cellKey{k.x + dx, k.y + dy, k.z + dz}] {
						if j > i {
							candidates = append(candidates, candidate{i, j})
						}
					}
				}
			}
		}
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(a.i, b.i); c != 0 {
			return c
		}
		return cmp.Compare(a.j, b.j)
	})

	var pairs []Pair
	for _, c := range candidates {
		sev, dist := d.Classify(bodies[c.i], bodies[c.j])
		if sev == model.SeverityNone {
			continue
		}
		pairs = append(pairs, Pair{A: bodies[c.i], B: bodies[c.j], Severity: sev, Distance: dist})
	}
	return pairs
}
