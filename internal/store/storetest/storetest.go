// Package storetest is a conformance suite every SnapshotStore backend runs.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

func Run(t *testing.T, newStore func(t *testing.T) store.SnapshotStore) {
	t.Run("match lifecycle", func(t *testing.T) { testMatchLifecycle(t, newStore(t)) })
	t.Run("missing records", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("tournaments", func(t *testing.T) { testTournaments(t, newStore(t)) })
}

func testMatchLifecycle(t *testing.T, s store.SnapshotStore) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := store.MatchRecord{
		ID:             "m-1",
		LeftPlayerID:   "p1",
		LeftName:       "ann",
		RightPlayerID:  "p2",
		RightName:      "bob",
		Status:         store.MatchWaiting,
		TournamentCode: "ABC234",
		BracketMatchID: "R1-M1",
		CreatedAt:      created,
	}
	require.NoError(t, s.SaveMatch(ctx, rec))

	started := created.Add(time.Second)
	require.NoError(t, s.UpdateMatch(ctx, "m-1", store.MatchUpdate{
		Status:    store.Ptr(store.MatchPlaying),
		StartedAt: &started,
	}))

	ended := created.Add(time.Minute)
	require.NoError(t, s.UpdateMatch(ctx, "m-1", store.MatchUpdate{
		Status:     store.Ptr(store.MatchFinished),
		LeftScore:  store.Ptr(5),
		RightScore: store.Ptr(3),
		WinnerID:   store.Ptr("p1"),
		Forfeit:    store.Ptr(false),
		EndedAt:    &ended,
	}))

	got, err := s.GetMatch(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, store.MatchFinished, got.Status)
	assert.Equal(t, 5, got.LeftScore)
	assert.Equal(t, 3, got.RightScore)
	assert.Equal(t, "p1", got.WinnerID)
	assert.Equal(t, "ann", got.LeftName)
	assert.Equal(t, "R1-M1", got.BracketMatchID)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.EndedAt)
	assert.True(t, started.Equal(*got.StartedAt))
	assert.True(t, ended.Equal(*got.EndedAt))
	assert.True(t, created.Equal(got.CreatedAt))
}

func testMissing(t *testing.T, s store.SnapshotStore) {
	ctx := context.Background()
	_, err := s.GetMatch(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateMatch(ctx, "nope", store.MatchUpdate{Status: store.Ptr(store.MatchPlaying)}), store.ErrNotFound)
	_, err = s.GetTournament(ctx, "NOPE22")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTournament(ctx, "NOPE22", store.TournamentRecord{}), store.ErrNotFound)
}

func testTournaments(t *testing.T, s store.SnapshotStore) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state := json.RawMessage(`{"code":"AAA222","participants":[]}`)

	for i, code := range []string{"AAA222", "BBB333", "CCC444"} {
		require.NoError(t, s.SaveTournament(ctx, store.TournamentRecord{
			Code:      code,
			Name:      "cup " + code,
			HostID:    "p1",
			Capacity:  8,
			Status:    store.TournamentRegistering,
			State:     state,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	done := store.TournamentRecord{
		Name:      "cup BBB333",
		HostID:    "p1",
		Capacity:  8,
		Status:    store.TournamentCompleted,
		State:     json.RawMessage(`{"code":"BBB333","champion":"p1"}`),
		CreatedAt: base.Add(time.Minute),
		UpdatedAt: base.Add(time.Hour),
	}
	require.NoError(t, s.UpdateTournament(ctx, "BBB333", done))

	got, err := s.GetTournament(ctx, "BBB333")
	require.NoError(t, err)
	assert.Equal(t, "BBB333", got.Code)
	assert.Equal(t, store.TournamentCompleted, got.Status)
	assert.JSONEq(t, string(done.State), string(got.State))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "AAA222", active[0].Code)
	assert.Equal(t, "CCC444", active[1].Code)
	assert.JSONEq(t, string(state), string(active[0].State))
}
