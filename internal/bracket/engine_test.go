package bracket

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeds(n int) []Seed {
	out := make([]Seed, n)
	for i := range out {
		out[i] = Seed{ID: fmt.Sprintf("p%d", i+1), Alias: fmt.Sprintf("alias%d", i+1)}
	}
	return out
}

func started(t *testing.T, n int) *Engine {
	t.Helper()
	e, err := New(seeds(n))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	return e
}

// playOut claims and resolves every match, left seed always winning.
func playOut(t *testing.T, e *Engine) int {
	t.Helper()
	rounds := 0
	for {
		m, ok := e.ClaimNext()
		if !ok {
			return rounds
		}
		rounds = max(rounds, m.Round)
		require.NoError(t, e.RecordResult(m.ID, m.Left.ID))
	}
}

func TestBuildRoundPairsInOrderWithBye(t *testing.T) {
	round := BuildRound(seeds(5), 1)
	require.Len(t, round, 3)
	assert.Equal(t, "R1-M1", round[0].ID)
	assert.Equal(t, "p1", round[0].Left.ID)
	assert.Equal(t, "p2", round[0].Right.ID)
	assert.Equal(t, "p3", round[1].Left.ID)

	bye := round[2]
	assert.True(t, bye.IsBye())
	assert.Equal(t, MatchBye, bye.Status)
	assert.Equal(t, "p5", bye.Winner.ID)
}

func TestRoundCountIsCeilLog2(t *testing.T) {
	cases := map[int]int{2: 1, 3: 2, 4: 2, 5: 3, 7: 3, 8: 3, 9: 4, 16: 4, 33: 6, 64: 6}
	for n, want := range cases {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			assert.Equal(t, want, RoundCount(n))
			e := started(t, n)
			playOut(t, e)
			assert.Equal(t, want, e.CurrentRound())
			champ, ok := e.Champion()
			require.True(t, ok)
			assert.Equal(t, "p1", champ.ID)
		})
	}
}

func TestThreePlayersByeAdvancesIntoFinal(t *testing.T) {
	e := started(t, 3)
	pending := e.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "R1-M1", pending[0].ID)

	m2, ok := e.Match("R1-M2")
	require.True(t, ok)
	assert.Equal(t, MatchBye, m2.Status)

	require.NoError(t, e.MarkActive("R1-M1"))
	require.NoError(t, e.RecordResult("R1-M1", "p2"))

	require.Equal(t, 2, e.CurrentRound())
	final, ok := e.Match("R2-M1")
	require.True(t, ok)
	assert.Equal(t, "p2", final.Left.ID)
	assert.Equal(t, "p3", final.Right.ID)
	assert.True(t, e.Eliminated("p1"))
	assert.False(t, e.Eliminated("p3"))

	require.NoError(t, e.MarkActive("R2-M1"))
	require.NoError(t, e.RecordResult("R2-M1", "p3"))
	champ, ok := e.Champion()
	require.True(t, ok)
	assert.Equal(t, "p3", champ.ID)
	assert.Empty(t, e.Pending())
}

func TestRecordResultErrors(t *testing.T) {
	cases := []struct {
		name    string
		claim   bool
		id      string
		winner  string
		wantErr error
	}{
		{name: "unknown match", claim: true, id: "R9-M9", winner: "p1", wantErr: ErrMatchNotFound},
		{name: "not claimed", claim: false, id: "R1-M1", winner: "p1", wantErr: ErrMatchNotCurrent},
		{name: "winner not in match", claim: true, id: "R1-M1", winner: "p3", wantErr: ErrInvalidWinner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := started(t, 4)
			if tc.claim {
				require.NoError(t, e.MarkActive("R1-M1"))
			}
			err := e.RecordResult(tc.id, tc.winner)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("bye match", func(t *testing.T) {
		e := started(t, 3)
		assert.ErrorIs(t, e.RecordResult("R1-M2", "p3"), ErrMatchNotCurrent)
	})

	t.Run("already completed", func(t *testing.T) {
		e := started(t, 4)
		require.NoError(t, e.MarkActive("R1-M1"))
		require.NoError(t, e.RecordResult("R1-M1", "p1"))
		assert.ErrorIs(t, e.RecordResult("R1-M1", "p2"), ErrMatchNotCurrent)
	})
}

func TestClaimAndRelease(t *testing.T) {
	e := started(t, 4)
	require.NoError(t, e.MarkActive("R1-M1"))
	assert.ErrorIs(t, e.MarkActive("R1-M1"), ErrMatchNotPending)
	assert.Len(t, e.Pending(), 1)

	require.NoError(t, e.Release("R1-M1"))
	assert.ErrorIs(t, e.Release("R1-M1"), ErrMatchNotCurrent)
	assert.Len(t, e.Pending(), 2)
}

func TestStartRules(t *testing.T) {
	e, err := New(seeds(1))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Start(), ErrNotEnoughPlayers)

	e = started(t, 2)
	assert.ErrorIs(t, e.Start(), ErrAlreadyStarted)

	_, err = New([]Seed{{ID: "a"}, {ID: "a"}})
	assert.ErrorIs(t, err, ErrDuplicateSeed)
}

func TestSerializeHydrateEquivalence(t *testing.T) {
	e := started(t, 6)
	require.NoError(t, e.MarkActive("R1-M1"))
	require.NoError(t, e.RecordResult("R1-M1", "p2"))
	require.NoError(t, e.MarkActive("R1-M2"))

	raw, err := json.Marshal(e.Serialize())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	h, err := Hydrate(snap)
	require.NoError(t, err)
	assert.Equal(t, e.Serialize(), h.Serialize())

	// Both engines must react identically to the same sequence.
	for _, eng := range []*Engine{e, h} {
		require.NoError(t, eng.RecordResult("R1-M2", "p4"))
		require.NoError(t, eng.MarkActive("R1-M3"))
		require.NoError(t, eng.RecordResult("R1-M3", "p5"))
	}
	assert.Equal(t, e.Serialize(), h.Serialize())
	assert.Equal(t, e.Pending(), h.Pending())
	assert.Equal(t, 2, h.CurrentRound())
}

func TestHydrateRejectsBadSnapshots(t *testing.T) {
	base := func() Snapshot {
		e := started(t, 4)
		require.NoError(t, e.MarkActive("R1-M1"))
		require.NoError(t, e.RecordResult("R1-M1", "p1"))
		return e.Serialize()
	}
	cases := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{name: "winner outside match", mutate: func(s *Snapshot) { s.Rounds[0][0].Winner = &Seed{ID: "p4"} }},
		{name: "unknown seed", mutate: func(s *Snapshot) { s.Rounds[0][1].Left = Seed{ID: "ghost"} }},
		{name: "misplaced id", mutate: func(s *Snapshot) { s.Rounds[0][1].ID = "R1-M7" }},
		{name: "bad status", mutate: func(s *Snapshot) { s.Rounds[0][1].Status = "lost" }},
		{name: "rounds before start", mutate: func(s *Snapshot) { s.Started = false }},
		{name: "bogus champion", mutate: func(s *Snapshot) { s.Champion = &Seed{ID: "p3"} }},
		{name: "duplicate seeds", mutate: func(s *Snapshot) { s.Seeds = append(s.Seeds, s.Seeds[0]) }},
		{name: "seed twice in a round", mutate: func(s *Snapshot) { s.Rounds[0][1].Left = s.Rounds[0][0].Left }},
		{name: "seeds out of order", mutate: func(s *Snapshot) {
			m := &s.Rounds[0][1]
			left, right := m.Left, *m.Right
			m.Left, m.Right = right, &left
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base()
			tc.mutate(&s)
			_, err := Hydrate(s)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestHydrateRejectsRoundNotBuiltFromWinners(t *testing.T) {
	e := started(t, 4)
	for id, winner := range map[string]string{"R1-M1": "p1", "R1-M2": "p3"} {
		require.NoError(t, e.MarkActive(id))
		require.NoError(t, e.RecordResult(id, winner))
	}
	good := e.Serialize()
	require.Len(t, good.Rounds, 2)
	_, err := Hydrate(good)
	require.NoError(t, err)

	loser := good
	loser.Rounds = append([][]Match(nil), good.Rounds...)
	final := loser.Rounds[1][0].clone()
	final.Left = Seed{ID: "p2", Alias: "p2"}
	loser.Rounds[1] = []Match{final}
	_, err = Hydrate(loser)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	extra := good
	extra.Rounds = [][]Match{good.Rounds[0], append([]Match{good.Rounds[1][0]}, good.Rounds[1][0])}
	_, err = Hydrate(extra)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}
