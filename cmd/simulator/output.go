package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/debris-avoidance-sim/core"
	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

// printer writes snapshots as they are produced. Events are always written;
// the world summary only every Every ticks.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	every  uint64
	enc    *json.Encoder
	err    error
}

func newPrinter(w io.Writer, format string, every uint64) *printer {
	if every == 0 {
		every = 1
	}
	return &printer{w: w, format: format, every: every, enc: json.NewEncoder(w)}
}

type jsonTick struct {
	Type        string  `json:"type"`
	Tick        uint64  `json:"tick"`
	SimTime     string  `json:"sim_time"`
	Satellites  int     `json:"satellites"`
	Debris      int     `json:"debris"`
	Score       float64 `json:"score"`
	MissionOver bool    `json:"mission_over,omitempty"`
}

type jsonEvent struct {
	Type         string   `json:"type"`
	Seq          uint64   `json:"seq"`
	Tick         uint64   `json:"tick"`
	Kind         string   `json:"kind"`
	Participants []string `json:"participants"`
	Severity     string   `json:"severity,omitempty"`
	DistanceKm   float64  `json:"distance_km,omitempty"`
}

// Print is registered as an engine tick listener. The first write error is
// kept and later output is dropped.
func (p *printer) Print(snap core.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil || p.format == "none" {
		return
	}
	summary := snap.Tick%p.every == 0 || snap.MissionOver

	switch p.format {
	case "jsonl":
		for _, ev := range snap.Events {
			p.write(p.enc.Encode(toJSONEvent(ev)))
		}
		if summary {
			p.write(p.enc.Encode(jsonTick{
				Type:        "tick",
				Tick:        snap.Tick,
				SimTime:     snap.SimTime.UTC().Format(time.RFC3339),
				Satellites:  len(snap.Satellites),
				Debris:      len(snap.Debris),
				Score:       snap.Score,
				MissionOver: snap.MissionOver,
			}))
		}
	default:
		stamp := snap.SimTime.UTC().Format(time.RFC3339)
		for _, ev := range snap.Events {
			_, err := fmt.Fprintf(p.w, "[%s] %-17s %s%s\n", stamp, ev.Kind, strings.Join(ev.Participants, " "), distance(ev))
			p.write(err)
		}
		if summary {
			_, err := fmt.Fprintf(p.w, "[%s] tick %-6d satellites=%d debris=%d score=%.1f\n",
				stamp, snap.Tick, len(snap.Satellites), len(snap.Debris), snap.Score)
			p.write(err)
		}
	}
}

func (p *printer) write(err error) {
	if err != nil && p.err == nil {
		p.err = err
	}
}

// Err returns the first write error.
func (p *printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func toJSONEvent(ev model.Event) jsonEvent {
	out := jsonEvent{
		Type:         "event",
		Seq:          ev.Seq,
		Tick:         ev.Tick,
		Kind:         ev.Kind.String(),
		Participants: ev.Participants,
		DistanceKm:   ev.Distance,
	}
	if ev.Severity != model.SeverityNone {
		out.Severity = ev.Severity.String()
	}
	return out
}

func distance(ev model.Event) string {
	if ev.Severity == model.SeverityNone {
		return ""
	}
	return fmt.Sprintf(" (%.3f km)", ev.Distance)
}
