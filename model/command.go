package model

// CommandKind identifies an operator command.
type CommandKind int

const (
	CmdStartManeuver CommandKind = iota
	CmdStartDeorbit
	CmdCancel
	CmdRefuel
)

func (k CommandKind) String() string {
	switch k {
	case CmdStartManeuver:
		return "start_maneuver"
	case CmdStartDeorbit:
		return "start_deorbit"
	case CmdCancel:
		return "cancel"
	case CmdRefuel:
		return "refuel"
	default:
		return "unknown"
	}
}

// Command is an operator instruction for one satellite. It takes effect at
// the start of the next tick.
type Command struct {
	Kind CommandKind
	// DeltaV is the total velocity change for StartManeuver (km/s).
	DeltaV Vec3
	// Ticks spreads a maneuver over several burns; values below 1 mean 1.
	Ticks int
	// Amount is the fuel added by Refuel.
	Amount float64
}

// StartManeuver builds a maneuver command.
func StartManeuver(deltaV Vec3, ticks int) Command {
	return Command{Kind: CmdStartManeuver, DeltaV: deltaV, Ticks: ticks}
}

// StartDeorbit builds a deorbit command.
func StartDeorbit() Command { return Command{Kind: CmdStartDeorbit} }

// Cancel builds a command that returns the satellite to idle.
func Cancel() Command { return Command{Kind: CmdCancel} }

// Refuel builds a command that supplies fuel externally.
func Refuel(amount float64) Command { return Command{Kind: CmdRefuel, Amount: amount} }
