package model

// EventKind classifies an Event.
type EventKind int

const (
	EventCloseApproach EventKind = iota
	EventCollision
	EventDestroyed
	EventDeorbitSuccess
	EventDeorbitFailure
	EventManeuverComplete
	EventManeuverFailure
	EventDebrisReentry
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	EventCloseApproach,
	EventCollision,
	EventDestroyed,
	EventDeorbitSuccess,
	EventDeorbitFailure,
	EventManeuverComplete,
	EventManeuverFailure,
	EventDebrisReentry,
}

func (k EventKind) String() string {
	switch k {
	case EventCloseApproach:
		return "close_approach"
	case EventCollision:
		return "collision"
	case EventDestroyed:
		return "destroyed"
	case EventDeorbitSuccess:
		return "deorbit_success"
	case EventDeorbitFailure:
		return "deorbit_failure"
	case EventManeuverComplete:
		return "maneuver_complete"
	case EventManeuverFailure:
		return "maneuver_failure"
	case EventDebrisReentry:
		return "debris_reentry"
	default:
		return "unknown"
	}
}

// ParseEventKind maps the String form back to an EventKind.
func ParseEventKind(s string) (EventKind, bool) {
	for _, k := range EventKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Severity grades how dangerous a detected pair is.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityCloseApproach
	SeverityCollision
)

func (s Severity) String() string {
	switch s {
	case SeverityCloseApproach:
		return "close_approach"
	case SeverityCollision:
		return "collision"
	default:
		return "none"
	}
}

// Event is an immutable record of something that happened during a tick.
// Participants always name bodies that existed when the event was emitted.
type Event struct {
	// Seq numbers events from 1 across the whole run.
	Seq          uint64
	Tick         uint64
	Kind         EventKind
	Participants []string
	Severity     Severity
	// Distance between the participants for pair events, in kilometres.
	Distance float64
}

// Involves reports whether id is one of the participants.
func (e Event) Involves(id string) bool {
	for _, p := range e.Participants {
		if p == id {
			return true
		}
	}
	return false
}
