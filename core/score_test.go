package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

func TestScoreTracker_LogSumsToScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SurvivalReward = 0.5
	s := NewScoreTracker(cfg)

	s.Apply(1, []model.Event{
		{Seq: 1, Kind: model.EventCloseApproach},
		{Seq: 2, Kind: model.EventCollision},
		{Seq: 3, Kind: model.EventDestroyed},
	}, 2)
	s.Apply(2, []model.Event{{Seq: 4, Kind: model.EventDeorbitSuccess}}, 1)

	sum := 0.0
	for _, e := range s.Log() {
		sum += e.Delta
	}
	if math.Abs(sum-s.Score()) > 1e-9 {
		t.Fatalf("log sums to %v, score is %v", sum, s.Score())
	}
	if want := -1 - 100 - 50 + 1.0 + 50 + 0.5; math.Abs(s.Score()-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", s.Score(), want)
	}
}

func TestScoreTracker_SkipsZeroDeltas(t *testing.T) {
	s := NewScoreTracker(DefaultConfig())
	entries := s.Apply(1, []model.Event{
		{Seq: 1, Kind: model.EventManeuverComplete},
		{Seq: 2, Kind: model.EventDeorbitFailure},
	}, 3)

	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want only the deorbit failure", entries)
	}
	e := entries[0]
	if e.Reason != "deorbit_failure" || e.EventSeq != 2 || e.Tick != 1 || e.Delta != -5 {
		t.Fatalf("entry = %+v", e)
	}
}

func TestScoreTracker_SurvivalReward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SurvivalReward = 2
	s := NewScoreTracker(cfg)

	entries := s.Apply(4, nil, 3)
	if len(entries) != 1 || entries[0].Reason != ReasonSurvival || entries[0].Delta != 6 || entries[0].EventSeq != 0 {
		t.Fatalf("entries = %+v", entries)
	}
	if got := s.Apply(5, nil, 0); len(got) != 0 {
		t.Fatalf("survival paid with no satellites: %+v", got)
	}
}

func TestScoreTracker_LogIsCopy(t *testing.T) {
	s := NewScoreTracker(DefaultConfig())
	s.Apply(1, []model.Event{{Seq: 1, Kind: model.EventCollision}}, 0)

	log := s.Log()
	log[0].Delta = 1e6
	if s.Log()[0].Delta != -100 {
		t.Fatalf("Log exposed internal storage")
	}
}
