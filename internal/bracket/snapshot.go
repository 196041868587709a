package bracket

import "fmt"

// Snapshot is the serialisable form of an Engine.
type Snapshot struct {
	Seeds    []Seed    `json:"seeds"`
	Rounds   [][]Match `json:"rounds"`
	Started  bool      `json:"started"`
	Champion *Seed     `json:"champion,omitempty"`
}

func (e *Engine) Serialize() Snapshot {
	s := Snapshot{
		Seeds:   e.Seeds(),
		Rounds:  e.Rounds(),
		Started: e.started,
	}
	if e.champion != nil {
		c := *e.champion
		s.Champion = &c
	}
	return s
}

// Hydrate rebuilds an engine from a snapshot. The result behaves exactly as
// the engine that produced it.
func Hydrate(s Snapshot) (*Engine, error) {
	e, err := New(s.Seeds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if !s.Started {
		if len(s.Rounds) > 0 || s.Champion != nil {
			return nil, fmt.Errorf("%w: rounds before start", ErrInvalidSnapshot)
		}
		return e, nil
	}
	if len(s.Rounds) == 0 {
		return nil, fmt.Errorf("%w: started without rounds", ErrInvalidSnapshot)
	}

	known := make(map[string]bool, len(s.Seeds))
	for _, seed := range s.Seeds {
		known[seed.ID] = true
	}
	e.started = true
	// Each round must be exactly what BuildRound makes of the previous
	// round's winners, starting from the registered seeds.
	seeds := s.Seeds
	for r, round := range s.Rounds {
		if len(round) == 0 {
			return nil, fmt.Errorf("%w: round %d is empty", ErrInvalidSnapshot, r+1)
		}
		want := BuildRound(seeds, r+1)
		if len(want) != len(round) {
			return nil, fmt.Errorf("%w: round %d has %d matches, want %d", ErrInvalidSnapshot, r+1, len(round), len(want))
		}
		built := make([]*Match, len(round))
		for i, m := range round {
			if err := validateMatch(m, r+1, i+1, known); err != nil {
				return nil, err
			}
			if !sameSeats(*want[i], m) {
				return nil, fmt.Errorf("%w: %s does not pair the seeds of round %d", ErrInvalidSnapshot, m.ID, r+1)
			}
			c := m.clone()
			built[i] = &c
		}
		if r < len(s.Rounds)-1 {
			seeds = make([]Seed, 0, len(built))
			for _, m := range built {
				if m.Status != MatchCompleted && m.Status != MatchBye {
					return nil, fmt.Errorf("%w: %s unfinished in a closed round", ErrInvalidSnapshot, m.ID)
				}
				seeds = append(seeds, *m.Winner)
			}
		}
		e.addRound(built)
	}

	e.advance()
	switch {
	case s.Champion == nil && e.champion != nil:
		return nil, fmt.Errorf("%w: missing champion", ErrInvalidSnapshot)
	case s.Champion != nil && (e.champion == nil || e.champion.ID != s.Champion.ID):
		return nil, fmt.Errorf("%w: champion does not match results", ErrInvalidSnapshot)
	case len(e.rounds) != len(s.Rounds):
		return nil, fmt.Errorf("%w: a finished round was never advanced", ErrInvalidSnapshot)
	}
	return e, nil
}

func validateMatch(m Match, round, index int, known map[string]bool) error {
	if m.ID != MatchID(round, index) || m.Round != round || m.Index != index {
		return fmt.Errorf("%w: match %q misplaced at R%d-M%d", ErrInvalidSnapshot, m.ID, round, index)
	}
	if !known[m.Left.ID] || (m.Right != nil && !known[m.Right.ID]) {
		return fmt.Errorf("%w: %s references an unknown seed", ErrInvalidSnapshot, m.ID)
	}
	switch m.Status {
	case MatchPending, MatchCurrent:
		if m.Right == nil || m.Winner != nil {
			return fmt.Errorf("%w: %s is open but malformed", ErrInvalidSnapshot, m.ID)
		}
	case MatchCompleted:
		if m.Right == nil || m.Winner == nil || !m.Has(m.Winner.ID) {
			return fmt.Errorf("%w: %s has no valid winner", ErrInvalidSnapshot, m.ID)
		}
	case MatchBye:
		if m.Right != nil || m.Winner == nil || m.Winner.ID != m.Left.ID {
			return fmt.Errorf("%w: %s is not a valid bye", ErrInvalidSnapshot, m.ID)
		}
	default:
		return fmt.Errorf("%w: %s has status %q", ErrInvalidSnapshot, m.ID, m.Status)
	}
	return nil
}

func sameSeats(a, b Match) bool {
	if a.Left.ID != b.Left.ID || (a.Right == nil) != (b.Right == nil) {
		return false
	}
	return a.Right == nil || a.Right.ID == b.Right.ID
}
