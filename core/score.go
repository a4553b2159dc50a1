package core

import "github.com/signalsfoundry/debris-avoidance-sim/model"

// ReasonSurvival is the log reason for the per-tick survival reward.
const ReasonSurvival = "survival"

// ScoreEntry is one audited score change.
type ScoreEntry struct {
	Tick   uint64
	Delta  float64
	Reason string
	// EventSeq is the event that caused the change, zero for survival
	// rewards.
	EventSeq uint64
}

// ScoreTracker keeps a running score and an append-only log whose deltas
// always sum to the score.
type ScoreTracker struct {
	deltas   map[model.EventKind]float64
	survival float64

	score float64
	log   []ScoreEntry
}

// NewScoreTracker builds a tracker applying the deltas and survival reward
// from cfg.
func NewScoreTracker(cfg Config) *ScoreTracker {
	deltas := make(map[model.EventKind]float64, len(cfg.ScoreDeltas))
	for k, v := range cfg.ScoreDeltas {
		deltas[k] = v
	}
	return &ScoreTracker{deltas: deltas, survival: cfg.SurvivalReward}
}

// Apply scores the tick's events in order and then the survival reward for
// activeSatellites. It returns the entries appended by this call.
func (s *ScoreTracker) Apply(tick uint64, events []model.Event, activeSatellites int) []ScoreEntry {
	start := len(s.log)
	for _, ev := range events {
		delta := s.deltas[ev.Kind]
		if delta == 0 {
			continue
		}
		s.add(ScoreEntry{Tick: tick, Delta: delta, Reason: ev.Kind.String(), EventSeq: ev.Seq})
	}
	if s.survival != 0 && activeSatellites > 0 {
		s.add(ScoreEntry{Tick: tick, Delta: s.survival * float64(activeSatellites), Reason: ReasonSurvival})
	}
	return append([]ScoreEntry(nil), s.log[start:]...)
}

func (s *ScoreTracker) add(e ScoreEntry) {
	s.score += e.Delta
	s.log = append(s.log, e)
}

// Score returns the current score.
func (s *ScoreTracker) Score() float64 { return s.score }

// Log returns a copy of the full score log.
func (s *ScoreTracker) Log() []ScoreEntry {
	return append([]ScoreEntry(nil), s.log...)
}
