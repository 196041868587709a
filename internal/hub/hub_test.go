package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/pong-backend/internal/bracket"
	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/tournament"
)

type testHub struct {
	*Hub
	clock *sched.Manual
}

func newTestHub(t *testing.T, mutate ...func(*Options)) *testHub {
	t.Helper()
	clock := sched.NewManual(time.Unix(1_700_000_000, 0))
	opts := Options{Room: room.DefaultConfig(), Clock: clock}
	for _, fn := range mutate {
		fn(&opts)
	}
	h := NewHub(context.Background(), opts)
	t.Cleanup(h.Shutdown)
	return &testHub{Hub: h, clock: clock}
}

// advance moves the manual clock on the hub loop so timer callbacks see the
// same state the loop does.
func (th *testHub) advance(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, th.Do(func() { th.clock.Advance(d) }))
}

func (th *testHub) connect(t *testing.T, playerID string) Conn {
	t.Helper()
	c, err := th.Connect(playerID, "name-"+playerID)
	require.NoError(t, err)
	welcome := expect(t, c, protocol.MsgWelcome)
	w, err := protocol.DecodePayload[protocol.Welcome](welcome)
	require.NoError(t, err)
	assert.Equal(t, c.ID, w.ConnID)
	return c
}

func (th *testHub) send(t *testing.T, c Conn, msgType string, payload any) {
	t.Helper()
	frame, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	th.Deliver(c.ID, frame)
	require.NoError(t, th.Do(func() {}))
}

// expect drains c until a frame of msgType arrives.
func expect(t *testing.T, c Conn, msgType string) protocol.Envelope {
	t.Helper()
	for {
		select {
		case frame, ok := <-c.Outbox:
			require.True(t, ok, "outbox closed waiting for %s", msgType)
			env, err := protocol.DecodeEnvelope(frame)
			require.NoError(t, err)
			if env.T == msgType {
				return env
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func expectError(t *testing.T, c Conn, code string) {
	t.Helper()
	e, err := protocol.DecodePayload[protocol.Error](expect(t, c, protocol.MsgError))
	require.NoError(t, err)
	assert.Equal(t, code, e.Code)
}

func (th *testHub) pair(t *testing.T) (Conn, Conn, protocol.MatchReady) {
	t.Helper()
	a := th.connect(t, "p1")
	b := th.connect(t, "p2")
	th.send(t, a, protocol.MsgJoinQueue, nil)
	qs, err := protocol.DecodePayload[protocol.QueueStatus](expect(t, a, protocol.MsgQueueStatus))
	require.NoError(t, err)
	assert.Equal(t, 1, qs.Position)

	th.send(t, b, protocol.MsgJoinQueue, nil)
	ready, err := protocol.DecodePayload[protocol.MatchReady](expect(t, a, protocol.MsgMatchReady))
	require.NoError(t, err)
	expect(t, b, protocol.MsgMatchReady)
	return a, b, ready
}

func TestQueuePairsFirstComerOnTheLeft(t *testing.T) {
	th := newTestHub(t)
	_, _, ready := th.pair(t)

	assert.Equal(t, pong.Left, ready.Side)
	assert.Equal(t, "p2", ready.Opponent.PlayerID)
	assert.Equal(t, "name-p2", ready.Opponent.Name)

	v, ok, err := th.Match(ready.RoomID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pong.StatusWaiting, v.State.Status)
}

func TestJoinQueueRejections(t *testing.T) {
	th := newTestHub(t)
	a := th.connect(t, "p1")
	th.send(t, a, protocol.MsgJoinQueue, nil)
	expect(t, a, protocol.MsgQueueStatus)
	th.send(t, a, protocol.MsgJoinQueue, nil)
	expectError(t, a, CodeQueued)

	second := th.connect(t, "p1")
	th.send(t, second, protocol.MsgJoinQueue, nil)
	expectError(t, second, CodeQueued)

	th.send(t, a, protocol.MsgLeaveQueue, nil)
	qs, err := protocol.DecodePayload[protocol.QueueStatus](expect(t, a, protocol.MsgQueueStatus))
	require.NoError(t, err)
	assert.Equal(t, 0, qs.Position)

	b := th.connect(t, "p2")
	th.send(t, a, protocol.MsgJoinQueue, nil)
	th.send(t, b, protocol.MsgJoinQueue, nil)
	expect(t, a, protocol.MsgMatchReady)

	th.send(t, a, protocol.MsgJoinQueue, nil)
	expectError(t, a, CodeInMatch)
}

func TestMatchPlaysAndForfeits(t *testing.T) {
	th := newTestHub(t)
	a, b, ready := th.pair(t)

	th.send(t, a, protocol.MsgMarkReady, nil)
	th.send(t, b, protocol.MsgMarkReady, protocol.MarkReady{})
	expect(t, a, protocol.MsgMatchStarted)
	expect(t, b, protocol.MsgMatchStarted)

	th.send(t, a, protocol.MsgSubmitInput, protocol.SubmitInput{Command: "up"})
	th.advance(t, time.Second/60)
	tick, err := protocol.DecodePayload[protocol.StateTick](expect(t, a, protocol.MsgStateTick))
	require.NoError(t, err)
	assert.Equal(t, ready.RoomID, tick.RoomID)
	assert.Equal(t, pong.StatusPlaying, tick.State.Status)
	assert.Less(t, tick.State.Left.Y, float64(pong.FieldHeight)/2)

	th.send(t, a, protocol.MsgForfeit, nil)
	ended, err := protocol.DecodePayload[protocol.MatchEnded](expect(t, b, protocol.MsgMatchEnded))
	require.NoError(t, err)
	assert.Equal(t, "p2", ended.WinnerID)
	assert.True(t, ended.Forfeit)

	th.send(t, a, protocol.MsgForfeit, nil)
	expectError(t, a, CodeNoMatch)
}

func TestDisconnectForfeitsAfterRejoinWindow(t *testing.T) {
	th := newTestHub(t)
	a, b, _ := th.pair(t)
	th.send(t, a, protocol.MsgMarkReady, nil)
	th.send(t, b, protocol.MsgMarkReady, nil)
	expect(t, a, protocol.MsgMatchStarted)

	th.Disconnect(b.ID)
	require.NoError(t, th.Do(func() {}))
	pd, err := protocol.DecodePayload[protocol.PlayerDisconnected](expect(t, a, protocol.MsgPlayerDisconnected))
	require.NoError(t, err)
	assert.Equal(t, "p2", pd.PlayerID)

	th.advance(t, room.DefaultConfig().RejoinWindow)
	ended, err := protocol.DecodePayload[protocol.MatchEnded](expect(t, a, protocol.MsgMatchEnded))
	require.NoError(t, err)
	assert.Equal(t, "p1", ended.WinnerID)
	assert.True(t, ended.Forfeit)
}

func TestReconnectResumesMatch(t *testing.T) {
	th := newTestHub(t, func(o *Options) { o.Room.Sim.MaxScore = 1000 })
	a, b, ready := th.pair(t)
	th.send(t, a, protocol.MsgMarkReady, nil)
	th.send(t, b, protocol.MsgMarkReady, nil)
	expect(t, a, protocol.MsgMatchStarted)

	th.Disconnect(b.ID)
	expect(t, a, protocol.MsgPlayerDisconnected)
	th.advance(t, 10*time.Second)

	back := th.connect(t, "p2")
	again, err := protocol.DecodePayload[protocol.MatchReady](expect(t, back, protocol.MsgMatchReady))
	require.NoError(t, err)
	assert.Equal(t, ready.RoomID, again.RoomID)
	assert.Equal(t, pong.Right, again.Side)
	expect(t, a, protocol.MsgMatchResumed)
	expect(t, back, protocol.MsgMatchResumed)

	th.advance(t, 21*time.Second)
	v, ok, err := th.Match(ready.RoomID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pong.StatusPlaying, v.State.Status)
}

func TestBadFrames(t *testing.T) {
	th := newTestHub(t)
	a := th.connect(t, "p1")

	th.Deliver(a.ID, []byte("nope"))
	expectError(t, a, CodeBadMessage)

	th.send(t, a, "dance", nil)
	expectError(t, a, CodeUnknownType)

	th.send(t, a, protocol.MsgSubmitInput, protocol.SubmitInput{Command: "sideways"})
	e, err := protocol.DecodePayload[protocol.Error](expect(t, a, protocol.MsgError))
	require.NoError(t, err)
	assert.Equal(t, CodeBadMessage, e.Code)
	assert.Contains(t, e.Message, `"sideways"`)

	th.send(t, a, protocol.MsgTournamentJoin, nil)
	expectError(t, a, CodeBadMessage)
}

func TestTournamentOverSocket(t *testing.T) {
	th := newTestHub(t)
	a := th.connect(t, "p1")
	b := th.connect(t, "p2")

	th.send(t, a, protocol.MsgTournamentCreate, protocol.TournamentCreate{Name: "cup", Alias: "ann", Capacity: 2})
	expect(t, a, protocol.MsgTournamentUpdate)

	list, err := th.Tournaments()
	require.NoError(t, err)
	require.Len(t, list, 1)
	code := list[0].Code

	th.send(t, b, protocol.MsgTournamentJoin, protocol.TournamentJoin{Code: "NOPE22", Alias: "bob"})
	expectError(t, b, CodeNoTournament)
	th.send(t, b, protocol.MsgTournamentJoin, protocol.TournamentJoin{Code: code, Alias: "bob"})
	expect(t, b, protocol.MsgTournamentUpdate)

	th.send(t, b, protocol.MsgTournamentStart, protocol.TournamentRef{Code: code})
	expectError(t, b, CodeTournament)

	th.send(t, a, protocol.MsgTournamentStart, protocol.TournamentRef{Code: code})
	tmr, err := protocol.DecodePayload[protocol.TournamentMatchReady](expect(t, a, protocol.MsgTournamentMatchReady))
	require.NoError(t, err)
	assert.Equal(t, code, tmr.Code)
	mr, err := protocol.DecodePayload[protocol.MatchReady](expect(t, b, protocol.MsgMatchReady))
	require.NoError(t, err)
	assert.Equal(t, code, mr.Tournament)

	th.send(t, b, protocol.MsgJoinQueue, nil)
	expectError(t, b, CodeInMatch)

	th.send(t, a, protocol.MsgMarkReady, nil)
	th.send(t, b, protocol.MsgMarkReady, nil)
	expect(t, a, protocol.MsgMatchStarted)
	th.send(t, b, protocol.MsgForfeit, nil)
	fin, err := protocol.DecodePayload[protocol.TournamentFinished](expect(t, a, protocol.MsgTournamentFinished))
	require.NoError(t, err)
	assert.Equal(t, "ann", fin.Champion)

	st, ok, err := th.Tournament(code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tournament.StatusCompleted, st.Status)

	th.send(t, a, protocol.MsgTournamentList, nil)
	expect(t, a, protocol.MsgTournamentList)
}

func TestBusyPlayerJoinsBracketAfterCasualMatch(t *testing.T) {
	th := newTestHub(t)
	host := th.connect(t, "p1")
	b := th.connect(t, "p2")
	c := th.connect(t, "p3")

	th.send(t, b, protocol.MsgJoinQueue, nil)
	th.send(t, c, protocol.MsgJoinQueue, nil)
	expect(t, b, protocol.MsgMatchReady)

	th.send(t, host, protocol.MsgTournamentCreate, protocol.TournamentCreate{Name: "cup", Alias: "ann", Capacity: 2})
	expect(t, host, protocol.MsgTournamentUpdate)
	list, err := th.Tournaments()
	require.NoError(t, err)
	require.Len(t, list, 1)
	code := list[0].Code
	th.send(t, b, protocol.MsgTournamentJoin, protocol.TournamentJoin{Code: code, Alias: "bob"})
	th.send(t, host, protocol.MsgTournamentStart, protocol.TournamentRef{Code: code})

	st, ok, err := th.Tournament(code)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, st.Bracket)
	assert.Equal(t, bracket.MatchPending, st.Bracket.Rounds[0][0].Status, "p2 is still seated in the casual match")

	th.send(t, c, protocol.MsgForfeit, nil)
	mr, err := protocol.DecodePayload[protocol.MatchReady](expect(t, b, protocol.MsgMatchReady))
	require.NoError(t, err)
	assert.Equal(t, code, mr.Tournament)
	assert.Equal(t, "R1-M1", mr.BracketMatch)
	expect(t, host, protocol.MsgTournamentMatchReady)

	st, _, err = th.Tournament(code)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCurrent, st.Bracket.Rounds[0][0].Status)

	// The finished casual room is cleaned up without disturbing the bracket.
	th.advance(t, time.Minute)
	st, _, err = th.Tournament(code)
	require.NoError(t, err)
	assert.Equal(t, bracket.MatchCurrent, st.Bracket.Rounds[0][0].Status)
}

func TestSlowClientIsDropped(t *testing.T) {
	th := newTestHub(t, func(o *Options) { o.OutboxSize = 1 })
	c, err := th.Connect("p1", "ann")
	require.NoError(t, err)

	th.send(t, c, protocol.MsgTournamentList, nil)

	<-c.Outbox // welcome
	_, open := <-c.Outbox
	assert.False(t, open)

	stats, err := th.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Clients, "registered until the socket reports the close")
	th.Disconnect(c.ID)
	stats, err = th.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Clients)
}

func TestShutdownClosesEverything(t *testing.T) {
	th := newTestHub(t)
	a := th.connect(t, "p1")
	th.Shutdown()

	_, open := <-a.Outbox
	assert.False(t, open)
	assert.ErrorIs(t, th.Do(func() {}), ErrClosed)
	_, err := th.Connect("p2", "bob")
	assert.ErrorIs(t, err, ErrClosed)
}
