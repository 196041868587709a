package room

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

type sent struct {
	conn    string
	msgType string
	payload any
}

type fakeNotifier struct{ sent []sent }

func (f *fakeNotifier) Send(connID, msgType string, payload any) {
	f.sent = append(f.sent, sent{connID, msgType, payload})
}

func (f *fakeNotifier) of(msgType string) []sent {
	var out []sent
	for _, s := range f.sent {
		if s.msgType == msgType {
			out = append(out, s)
		}
	}
	return out
}

type fakeRecorder struct {
	saved   []store.MatchRecord
	updates []store.MatchUpdate
}

func (f *fakeRecorder) SaveMatch(rec store.MatchRecord) { f.saved = append(f.saved, rec) }
func (f *fakeRecorder) UpdateMatch(_ string, u store.MatchUpdate) {
	f.updates = append(f.updates, u)
}

type harness struct {
	clock *sched.Manual
	n     *fakeNotifier
	rec   *fakeRecorder
	m     *Manager
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	h := &harness{
		clock: sched.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		n:     &fakeNotifier{},
		rec:   &fakeRecorder{},
	}
	h.m = NewManager(h.clock, h.n, h.rec, cfg, zap.NewNop())
	return h
}

func pairing(a, b string) matchmaking.Pairing {
	return matchmaking.Pairing{
		First:  matchmaking.Ticket{ConnID: "c-" + a, PlayerID: a, Name: a},
		Second: matchmaking.Ticket{ConnID: "c-" + b, PlayerID: b, Name: b},
	}
}

func (h *harness) playing(t *testing.T, hooks Hooks) *Room {
	t.Helper()
	r, err := h.m.CreateRoom(pairing("alice", "bob"), Options{Hooks: hooks})
	require.NoError(t, err)
	require.NoError(t, h.m.SetReady("alice"))
	require.Equal(t, pong.StatusWaiting, r.Status())
	require.NoError(t, h.m.SetReady("bob"))
	require.Equal(t, pong.StatusPlaying, r.Status())
	return r
}

func TestCreateRoomAssignsSidesInPairingOrder(t *testing.T) {
	h := newHarness(t)
	r, err := h.m.CreateRoom(pairing("alice", "bob"), Options{})
	require.NoError(t, err)

	v := r.View()
	assert.Equal(t, "alice", v.Seats[0].PlayerID)
	assert.Equal(t, pong.Left, v.Seats[0].Side)
	assert.Equal(t, "bob", v.Seats[1].PlayerID)

	ready := h.n.of(protocol.MsgMatchReady)
	require.Len(t, ready, 2)
	assert.Equal(t, pong.Right, ready[1].payload.(protocol.MatchReady).Side)
	require.Len(t, h.rec.saved, 1)
	assert.Equal(t, store.MatchWaiting, h.rec.saved[0].Status)

	_, err = h.m.CreateRoom(pairing("alice", "carol"), Options{})
	assert.ErrorIs(t, err, ErrPlayerBusy)
}

func TestTicksBroadcastState(t *testing.T) {
	h := newHarness(t)
	h.playing(t, Hooks{})
	assert.Len(t, h.n.of(protocol.MsgMatchStarted), 2)

	h.clock.Advance(time.Second / 60)
	ticks := h.n.of(protocol.MsgStateTick)
	require.Len(t, ticks, 2)
	assert.EqualValues(t, 1, ticks[0].payload.(protocol.StateTick).State.Tick)

	require.NoError(t, h.m.ApplyInput("alice", pong.Up))
	assert.ErrorIs(t, h.m.ApplyInput("nobody", pong.Up), ErrRoomMissing)
}

func TestInputIgnoredBeforeStart(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.CreateRoom(pairing("alice", "bob"), Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, h.m.ApplyInput("alice", pong.Up), pong.ErrNotPlaying)
}

func TestMatchPlaysToCompletionOnce(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Sim.MaxScore = 1 })
	var results []Result
	r := h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	for i := 0; i < 600 && !r.Ended(); i++ {
		h.clock.Advance(time.Second / 2)
	}
	require.True(t, r.Ended(), "match never finished")
	require.Len(t, results, 1)
	assert.False(t, results[0].Forfeit)
	assert.NotEqual(t, results[0].WinnerID, results[0].LoserID)
	assert.Len(t, h.n.of(protocol.MsgMatchEnded), 2)

	ticks := len(h.n.of(protocol.MsgStateTick))
	h.clock.Advance(time.Second)
	assert.Equal(t, ticks, len(h.n.of(protocol.MsgStateTick)), "ticker stops at the end")
	assert.False(t, h.m.InRoom("alice"))

	h.clock.Advance(DefaultConfig().CleanupDelay)
	_, ok := h.m.Get(r.ID())
	assert.False(t, ok)
}

func TestDisconnectWhilePlayingForfeitsAfterWindow(t *testing.T) {
	h := newHarness(t)
	var results []Result
	r := h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	h.m.HandleDisconnect("c-bob")
	assert.Equal(t, pong.StatusPaused, r.Status())
	assert.Equal(t, 1, h.clock.Pending(), "exactly one forfeit check armed")

	dc := h.n.of(protocol.MsgPlayerDisconnected)
	require.Len(t, dc, 1)
	assert.Equal(t, "c-alice", dc[0].conn)

	h.clock.Advance(29 * time.Second)
	assert.Empty(t, results)

	h.clock.Advance(time.Second)
	require.Len(t, results, 1)
	assert.True(t, results[0].Forfeit)
	assert.Equal(t, "alice", results[0].WinnerID)
	assert.Equal(t, "bob", results[0].LoserID)
	assert.Equal(t, pong.StatusFinished, r.Status())
}

func TestReconnectBeforeDeadlineResumes(t *testing.T) {
	// Unattended paddles concede points; keep the rally going past the old deadline.
	h := newHarness(t, func(c *Config) { c.Sim.MaxScore = 1000 })
	var results []Result
	r := h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	h.m.HandleDisconnect("c-bob")
	h.clock.Advance(10 * time.Second)
	require.True(t, h.m.Reconnect("bob", "c-bob-2"))
	assert.Equal(t, pong.StatusPlaying, r.Status())
	assert.Len(t, h.n.of(protocol.MsgMatchResumed), 2)

	h.clock.Advance(21 * time.Second)
	assert.Empty(t, results, "stale forfeit check is a no-op")
	assert.Equal(t, pong.StatusPlaying, r.Status())

	// The new connection is what routes to the room now.
	h.m.HandleDisconnect("c-bob")
	assert.Equal(t, pong.StatusPlaying, r.Status())
	h.m.HandleDisconnect("c-bob-2")
	assert.Equal(t, pong.StatusPaused, r.Status())
}

func TestSecondDisconnectMovesDeadline(t *testing.T) {
	h := newHarness(t)
	var results []Result
	h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	h.m.HandleDisconnect("c-bob")
	h.clock.Advance(20 * time.Second)
	require.True(t, h.m.Reconnect("bob", "c-bob-2"))
	h.clock.Advance(5 * time.Second)
	h.m.HandleDisconnect("c-bob-2")

	h.clock.Advance(5 * time.Second) // first check fires here
	assert.Empty(t, results)

	h.clock.Advance(25 * time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].WinnerID)
}

func TestBothDisconnectedFirstToLeaveLoses(t *testing.T) {
	h := newHarness(t)
	var results []Result
	h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	h.m.HandleDisconnect("c-alice")
	h.clock.Advance(time.Second)
	h.m.HandleDisconnect("c-bob")
	h.clock.Advance(30 * time.Second)

	require.Len(t, results, 1)
	assert.Equal(t, "bob", results[0].WinnerID)
	assert.True(t, results[0].Forfeit)
}

func TestDisconnectBeforeStartCancels(t *testing.T) {
	h := newHarness(t)
	var cancelled []Result
	r, err := h.m.CreateRoom(pairing("alice", "bob"), Options{
		Hooks: Hooks{
			OnCancel:   func(res Result) { cancelled = append(cancelled, res) },
			OnComplete: func(Result) { t.Error("cancelled match must not complete") },
		},
	})
	require.NoError(t, err)
	require.NoError(t, h.m.SetReady("alice"))

	h.m.HandleDisconnect("c-bob")
	require.Len(t, cancelled, 1)
	assert.True(t, cancelled[0].Cancelled)
	assert.True(t, r.Ended())
	assert.Len(t, h.n.of(protocol.MsgMatchCancelled), 1)
	assert.False(t, h.m.InRoom("alice"))
	assert.False(t, h.m.Reconnect("bob", "c-bob-2"))
}

func TestVoluntaryForfeit(t *testing.T) {
	h := newHarness(t)
	var results []Result
	h.playing(t, Hooks{OnComplete: func(res Result) { results = append(results, res) }})

	require.NoError(t, h.m.Forfeit("alice"))
	require.Len(t, results, 1)
	assert.Equal(t, "bob", results[0].WinnerID)
	assert.True(t, results[0].Forfeit)
	assert.ErrorIs(t, h.m.Forfeit("alice"), ErrRoomMissing)
}

func TestDestroyKeepsNewerIndexes(t *testing.T) {
	h := newHarness(t)
	first := h.playing(t, Hooks{})
	require.NoError(t, h.m.Forfeit("bob"))

	second, err := h.m.CreateRoom(pairing("alice", "bob"), Options{})
	require.NoError(t, err)

	h.m.DestroyRoom(first.ID())
	v, ok := h.m.RoomFor("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID(), v.ID)
	assert.Equal(t, 1, h.m.Len())
}

func TestManyRoomsTickIndependently(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		_, err := h.m.CreateRoom(pairing(a, b), Options{})
		require.NoError(t, err)
		require.NoError(t, h.m.SetReady(a))
		require.NoError(t, h.m.SetReady(b))
	}
	h.clock.Advance(time.Second / 60)
	assert.Len(t, h.n.of(protocol.MsgStateTick), 10)
}
