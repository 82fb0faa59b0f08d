package domain

// Output is one item a debate session emits toward its client: a
// participant GenerationEvent or a session-level marker.
type Output interface {
	output()
}

// RoundStarted marks the beginning of a round.
type RoundStarted struct {
	Round       int
	TotalRounds int
	Parallel    bool
}

// RoundFinished marks the end of a round.
type RoundFinished struct {
	Round int
}

// DebateFinished marks the end of a session.
type DebateFinished struct{}

func (GenerationEvent) output() {}
func (RoundStarted) output()    {}
func (RoundFinished) output()   {}
func (DebateFinished) output()  {}
