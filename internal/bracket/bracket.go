// Package bracket is a single-elimination state machine. It knows nothing
// about connections or rooms; callers claim matches, play them elsewhere and
// report the winner back.
package bracket

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted   = errors.New("bracket already started")
	ErrNotEnoughPlayers = errors.New("bracket needs at least two players")
	ErrDuplicateSeed    = errors.New("duplicate seed")
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchNotPending  = errors.New("match is not pending")
	ErrMatchNotCurrent  = errors.New("match is not current")
	ErrInvalidWinner    = errors.New("winner is not in this match")
	ErrInvalidSnapshot  = errors.New("invalid bracket snapshot")
)

type Seed struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchCurrent   MatchStatus = "current"
	MatchCompleted MatchStatus = "completed"
	MatchBye       MatchStatus = "bye"
)

type Match struct {
	ID     string      `json:"id"`
	Round  int         `json:"round"`
	Index  int         `json:"index"`
	Left   Seed        `json:"left"`
	Right  *Seed       `json:"right,omitempty"` // nil for a bye
	Status MatchStatus `json:"status"`
	Winner *Seed       `json:"winner,omitempty"`
}

func (m Match) IsBye() bool { return m.Right == nil }

// Has reports whether seedID plays in m.
func (m Match) Has(seedID string) bool {
	return m.Left.ID == seedID || (m.Right != nil && m.Right.ID == seedID)
}

func (m Match) clone() Match {
	c := m
	if m.Right != nil {
		r := *m.Right
		c.Right = &r
	}
	if m.Winner != nil {
		w := *m.Winner
		c.Winner = &w
	}
	return c
}

func MatchID(round, index int) string {
	return fmt.Sprintf("R%d-M%d", round, index)
}

// BuildRound pairs seeds in order (1v2, 3v4, ...). An odd seed out gets a bye
// and advances without playing.
func BuildRound(seeds []Seed, round int) []*Match {
	out := make([]*Match, 0, (len(seeds)+1)/2)
	for i := 0; i < len(seeds); i += 2 {
		m := &Match{
			ID:     MatchID(round, i/2+1),
			Round:  round,
			Index:  i/2 + 1,
			Left:   seeds[i],
			Status: MatchPending,
		}
		if i+1 < len(seeds) {
			right := seeds[i+1]
			m.Right = &right
		} else {
			w := seeds[i]
			m.Status = MatchBye
			m.Winner = &w
		}
		out = append(out, m)
	}
	return out
}

// RoundCount is the number of rounds a bracket of n seeds plays.
func RoundCount(n int) int {
	rounds := 0
	for n > 1 {
		n = (n + 1) / 2
		rounds++
	}
	return rounds
}
