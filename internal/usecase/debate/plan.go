package debate

// Regime is how a round schedules its participants.
type Regime int

const (
	Parallel Regime = iota + 1
	Sequential
)

func (r Regime) String() string {
	switch r {
	case Parallel:
		return "parallel"
	case Sequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// RoundPlan describes one round before it runs.
type RoundPlan struct {
	Round        int
	TotalRounds  int
	Regime       Regime
	Participants []Participant
}

// PlanRound returns the plan for round n of total. Round 1 runs in
// parallel since nobody has anything to respond to yet; later rounds run
// sequentially.
func PlanRound(n, total int, participants []Participant) RoundPlan {
	regime := Sequential
	if n == 1 {
		regime = Parallel
	}
	return RoundPlan{
		Round:        n,
		TotalRounds:  total,
		Regime:       regime,
		Participants: participants,
	}
}

// RoundState is the orchestrator's progress through a round.
type RoundState int

const (
	RoundIdle RoundState = iota
	RoundLaunching
	RoundDraining
	RoundComplete
)

func (s RoundState) String() string {
	switch s {
	case RoundIdle:
		return "idle"
	case RoundLaunching:
		return "launching"
	case RoundDraining:
		return "draining"
	case RoundComplete:
		return "complete"
	default:
		return "unknown"
	}
}
