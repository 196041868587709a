package bracket

import "fmt"

// Engine is not safe for concurrent use.
type Engine struct {
	seeds    []Seed
	rounds   [][]*Match
	byID     map[string]*Match
	started  bool
	champion *Seed
}

func New(seeds []Seed) (*Engine, error) {
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeed, s.ID)
		}
		seen[s.ID] = true
	}
	return &Engine{
		seeds: append([]Seed(nil), seeds...),
		byID:  make(map[string]*Match),
	}, nil
}

func (e *Engine) Start() error {
	if e.started {
		return ErrAlreadyStarted
	}
	if len(e.seeds) < 2 {
		return ErrNotEnoughPlayers
	}
	e.started = true
	e.addRound(BuildRound(e.seeds, 1))
	e.advance()
	return nil
}

func (e *Engine) Started() bool { return e.started }

func (e *Engine) Seeds() []Seed { return append([]Seed(nil), e.seeds...) }

// CurrentRound is 1-based; 0 before Start.
func (e *Engine) CurrentRound() int { return len(e.rounds) }

func (e *Engine) Champion() (Seed, bool) {
	if e.champion == nil {
		return Seed{}, false
	}
	return *e.champion, true
}

// Pending lists unclaimed matches in round then index order.
func (e *Engine) Pending() []Match {
	var out []Match
	for _, round := range e.rounds {
		for _, m := range round {
			if m.Status == MatchPending {
				out = append(out, m.clone())
			}
		}
	}
	return out
}

func (e *Engine) Match(id string) (Match, bool) {
	m, ok := e.byID[id]
	if !ok {
		return Match{}, false
	}
	return m.clone(), true
}

func (e *Engine) Rounds() [][]Match {
	out := make([][]Match, len(e.rounds))
	for i, round := range e.rounds {
		out[i] = make([]Match, len(round))
		for j, m := range round {
			out[i][j] = m.clone()
		}
	}
	return out
}

// Eliminated reports whether seedID has lost a match.
func (e *Engine) Eliminated(seedID string) bool {
	for _, round := range e.rounds {
		for _, m := range round {
			if m.Status == MatchCompleted && m.Has(seedID) && m.Winner.ID != seedID {
				return true
			}
		}
	}
	return false
}

// MarkActive claims a pending match for play.
func (e *Engine) MarkActive(id string) error {
	m, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if m.Status != MatchPending {
		return fmt.Errorf("%w: %s is %s", ErrMatchNotPending, id, m.Status)
	}
	m.Status = MatchCurrent
	return nil
}

// Release hands a claimed match back to the pending pool.
func (e *Engine) Release(id string) error {
	m, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if m.Status != MatchCurrent {
		return fmt.Errorf("%w: %s is %s", ErrMatchNotCurrent, id, m.Status)
	}
	m.Status = MatchPending
	return nil
}

// ClaimNext claims the first pending match, if any.
func (e *Engine) ClaimNext() (Match, bool) {
	for _, m := range e.Pending() {
		if e.MarkActive(m.ID) == nil {
			m.Status = MatchCurrent
			return m, true
		}
	}
	return Match{}, false
}

func (e *Engine) RecordResult(id, winnerID string) error {
	m, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if m.Status != MatchCurrent {
		return fmt.Errorf("%w: %s is %s", ErrMatchNotCurrent, id, m.Status)
	}
	var winner Seed
	switch {
	case m.Left.ID == winnerID:
		winner = m.Left
	case m.Right != nil && m.Right.ID == winnerID:
		winner = *m.Right
	default:
		return fmt.Errorf("%w: %s in %s", ErrInvalidWinner, winnerID, id)
	}
	m.Status = MatchCompleted
	m.Winner = &winner
	e.advance()
	return nil
}

func (e *Engine) addRound(round []*Match) {
	e.rounds = append(e.rounds, round)
	for _, m := range round {
		e.byID[m.ID] = m
	}
}

// advance builds rounds until the latest one still has matches to play.
func (e *Engine) advance() {
	for e.champion == nil && len(e.rounds) > 0 {
		last := e.rounds[len(e.rounds)-1]
		var next []Seed
		for _, m := range last {
			if m.Status != MatchCompleted && m.Status != MatchBye {
				return
			}
			next = append(next, *m.Winner)
		}
		switch len(next) {
		case 0:
			return
		case 1:
			c := next[0]
			e.champion = &c
			return
		}
		e.addRound(BuildRound(next, len(e.rounds)+1))
	}
}
