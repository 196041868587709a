// Package room runs live matches. A Room drives one pong.Simulation through
// its lifecycle and the Manager owns every room plus the connection and player
// indexes that route traffic to them. Nothing here locks: all calls must come
// from the scheduler's loop.
package room

import (
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

var (
	ErrNotInRoom  = errors.New("player is not in this room")
	ErrNotWaiting = errors.New("match already started")
	ErrEnded      = errors.New("match has ended")
)

// Notifier delivers an event to one connection. Unknown connections are
// dropped silently.
type Notifier interface {
	Send(connID, msgType string, payload any)
}

// Recorder persists match snapshots without blocking.
type Recorder interface {
	SaveMatch(rec store.MatchRecord)
	UpdateMatch(id string, u store.MatchUpdate)
}

type Config struct {
	TickRate     int
	RejoinWindow time.Duration
	CleanupDelay time.Duration
	Sim          pong.Config
}

func DefaultConfig() Config {
	return Config{
		TickRate:     60,
		RejoinWindow: 30 * time.Second,
		CleanupDelay: 5 * time.Second,
		Sim:          pong.DefaultConfig(),
	}
}

func (c Config) interval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickRate)
}

type Seat struct {
	Side           pong.Side `json:"side"`
	PlayerID       string    `json:"playerId"`
	ConnID         string    `json:"-"`
	Name           string    `json:"name"`
	Ready          bool      `json:"ready"`
	Connected      bool      `json:"connected"`
	DisconnectedAt time.Time `json:"-"`
}

// Result is what a room reports when it finishes or is cancelled.
type Result struct {
	RoomID         string
	TournamentCode string
	BracketMatchID string
	WinnerID       string
	LoserID        string
	Score          pong.Score
	Forfeit        bool
	Cancelled      bool
}

type Hooks struct {
	OnStart    func(roomID string)
	OnComplete func(Result)
	OnCancel   func(Result)
}

// Options binds a room to a tournament match; zero for queue matches.
type Options struct {
	TournamentCode string
	BracketMatchID string
	Hooks          Hooks
}

// View is a read-only copy of a room.
type View struct {
	ID             string     `json:"id"`
	TournamentCode string     `json:"tournamentCode,omitempty"`
	BracketMatchID string     `json:"bracketMatchId,omitempty"`
	Seats          [2]Seat    `json:"seats"`
	State          pong.State `json:"state"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type Room struct {
	id        string
	opts      Options
	cfg       Config
	seats     [2]*Seat
	sim       *pong.Simulation
	clock     sched.Scheduler
	tick      sched.Timer
	deadline  time.Time
	notify    Notifier
	rec       Recorder
	log       *zap.Logger
	createdAt time.Time
	ended     bool
}

func newRoom(id string, left, right Seat, opts Options, cfg Config, clock sched.Scheduler, rng *rand.Rand, n Notifier, rec Recorder, log *zap.Logger) *Room {
	left.Side, right.Side = pong.Left, pong.Right
	left.Connected, right.Connected = true, true
	return &Room{
		id:        id,
		opts:      opts,
		cfg:       cfg,
		seats:     [2]*Seat{&left, &right},
		sim:       pong.New(cfg.Sim, rng),
		clock:     clock,
		notify:    n,
		rec:       rec,
		log:       log.With(zap.String("room", id)),
		createdAt: clock.Now(),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Status() pong.Status { return r.sim.Status() }

// Ended is true once the room has finished or been cancelled.
func (r *Room) Ended() bool { return r.ended }

func (r *Room) seat(playerID string) *Seat {
	for _, s := range r.seats {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

func (r *Room) other(s *Seat) *Seat {
	if s == r.seats[0] {
		return r.seats[1]
	}
	return r.seats[0]
}

func (r *Room) broadcast(msgType string, payload any) {
	for _, s := range r.seats {
		if s.Connected {
			r.notify.Send(s.ConnID, msgType, payload)
		}
	}
}

func (r *Room) SetReady(playerID string) error {
	s := r.seat(playerID)
	if s == nil {
		return ErrNotInRoom
	}
	if r.sim.Status() != pong.StatusWaiting || r.ended {
		return ErrNotWaiting
	}
	s.Ready = true
	if !r.seats[0].Ready || !r.seats[1].Ready {
		return nil
	}

	if err := r.sim.Start(); err != nil {
		return err
	}
	r.startTicking()
	now := r.clock.Now()
	r.rec.UpdateMatch(r.id, store.MatchUpdate{Status: store.Ptr(store.MatchPlaying), StartedAt: &now})
	r.broadcast(protocol.MsgMatchStarted, protocol.RoomRef{RoomID: r.id})
	r.log.Info("match started")
	if r.opts.Hooks.OnStart != nil {
		r.opts.Hooks.OnStart(r.id)
	}
	return nil
}

// ApplyInput steers the player's paddle. Input outside play is ignored.
func (r *Room) ApplyInput(playerID string, cmd pong.Command) error {
	s := r.seat(playerID)
	if s == nil {
		return ErrNotInRoom
	}
	return r.sim.SetDirection(s.Side, cmd)
}

func (r *Room) step() {
	r.sim.Step(r.cfg.interval())
	st := r.sim.State()
	r.broadcast(protocol.MsgStateTick, protocol.StateTick{RoomID: r.id, State: st})
	if st.Status == pong.StatusFinished {
		r.complete(false)
	}
}

// HandleDisconnect reacts to playerID losing its connection.
func (r *Room) HandleDisconnect(playerID string) {
	s := r.seat(playerID)
	if s == nil || r.ended || !s.Connected {
		return
	}
	s.Connected = false
	s.DisconnectedAt = r.clock.Now()

	switch r.sim.Status() {
	case pong.StatusWaiting:
		r.log.Info("player left before start", zap.String("player", playerID))
		r.cancel()

	case pong.StatusPlaying:
		_ = r.sim.Pause()
		r.stopTicking()
		r.deadline = r.clock.Now().Add(r.cfg.RejoinWindow)
		r.rec.UpdateMatch(r.id, store.MatchUpdate{Status: store.Ptr(store.MatchPaused)})
		r.broadcast(protocol.MsgPlayerDisconnected, protocol.PlayerDisconnected{
			RoomID:   r.id,
			PlayerID: playerID,
			Deadline: r.deadline,
		})
		r.clock.AfterFunc(r.cfg.RejoinWindow, r.checkForfeit)
		r.log.Info("match paused", zap.String("player", playerID), zap.Time("deadline", r.deadline))

	case pong.StatusPaused:
		// The pending check already covers this seat.
	}
}

// checkForfeit runs when a rejoin deadline lapses. It is a no-op if play
// resumed or a later disconnect pushed the deadline out.
func (r *Room) checkForfeit() {
	if r.ended || r.sim.Status() != pong.StatusPaused || r.clock.Now().Before(r.deadline) {
		return
	}
	left, right := r.seats[0], r.seats[1]
	var winner *Seat
	switch {
	case left.Connected && !right.Connected:
		winner = left
	case right.Connected && !left.Connected:
		winner = right
	case !left.Connected && !right.Connected:
		// First to drop loses.
		winner = left
		if right.DisconnectedAt.After(left.DisconnectedAt) {
			winner = right
		}
	default:
		return
	}
	_ = r.sim.Finish(winner.Side)
	r.log.Info("forfeit after rejoin window", zap.String("winner", winner.PlayerID))
	r.complete(true)
}

// Reconnect rebinds playerID's seat to connID and resumes play once both
// seats are connected again.
func (r *Room) Reconnect(playerID, connID string) error {
	s := r.seat(playerID)
	if s == nil {
		return ErrNotInRoom
	}
	if r.ended {
		return ErrEnded
	}
	s.ConnID = connID
	s.Connected = true
	s.DisconnectedAt = time.Time{}

	opp := r.other(s)
	r.notify.Send(connID, protocol.MsgMatchReady, protocol.MatchReady{
		RoomID:       r.id,
		Side:         s.Side,
		Opponent:     protocol.Opponent{PlayerID: opp.PlayerID, Name: opp.Name},
		Tournament:   r.opts.TournamentCode,
		BracketMatch: r.opts.BracketMatchID,
	})

	if r.sim.Status() == pong.StatusPaused && opp.Connected {
		_ = r.sim.Resume()
		r.startTicking()
		r.deadline = time.Time{}
		r.rec.UpdateMatch(r.id, store.MatchUpdate{Status: store.Ptr(store.MatchPlaying)})
		r.broadcast(protocol.MsgMatchResumed, protocol.RoomRef{RoomID: r.id})
		r.log.Info("match resumed", zap.String("player", playerID))
	}
	return nil
}

// Forfeit concedes the match for playerID. Before kick-off it cancels.
func (r *Room) Forfeit(playerID string) error {
	s := r.seat(playerID)
	if s == nil {
		return ErrNotInRoom
	}
	if r.ended {
		return ErrEnded
	}
	if r.sim.Status() == pong.StatusWaiting {
		r.cancel()
		return nil
	}
	_ = r.sim.Finish(r.other(s).Side)
	r.complete(true)
	return nil
}

func (r *Room) startTicking() {
	r.tick = r.clock.Every(r.cfg.interval(), r.step)
}

func (r *Room) stopTicking() {
	if r.tick != nil {
		r.tick.Stop()
		r.tick = nil
	}
}

// complete fires the completion event at most once.
func (r *Room) complete(forfeit bool) {
	if r.ended {
		return
	}
	r.ended = true
	r.stopTicking()

	st := r.sim.State()
	winner := r.seats[0]
	if st.Winner == pong.Right {
		winner = r.seats[1]
	}
	loser := r.other(winner)
	res := Result{
		RoomID:         r.id,
		TournamentCode: r.opts.TournamentCode,
		BracketMatchID: r.opts.BracketMatchID,
		WinnerID:       winner.PlayerID,
		LoserID:        loser.PlayerID,
		Score:          st.Score,
		Forfeit:        forfeit,
	}

	now := r.clock.Now()
	r.rec.UpdateMatch(r.id, store.MatchUpdate{
		Status:     store.Ptr(store.MatchFinished),
		LeftScore:  store.Ptr(st.Score.Left),
		RightScore: store.Ptr(st.Score.Right),
		WinnerID:   store.Ptr(res.WinnerID),
		Forfeit:    store.Ptr(forfeit),
		EndedAt:    &now,
	})
	r.broadcast(protocol.MsgMatchEnded, protocol.MatchEnded{
		RoomID:   r.id,
		WinnerID: res.WinnerID,
		LoserID:  res.LoserID,
		Score:    st.Score,
		Forfeit:  forfeit,
	})
	r.log.Info("match ended",
		zap.String("winner", res.WinnerID),
		zap.Int("left", st.Score.Left),
		zap.Int("right", st.Score.Right),
		zap.Bool("forfeit", forfeit))

	if r.opts.Hooks.OnComplete != nil {
		r.opts.Hooks.OnComplete(res)
	}
}

func (r *Room) cancel() {
	if r.ended {
		return
	}
	r.ended = true
	r.stopTicking()
	r.sim.Cancel()

	now := r.clock.Now()
	r.rec.UpdateMatch(r.id, store.MatchUpdate{Status: store.Ptr(store.MatchCancelled), EndedAt: &now})
	r.broadcast(protocol.MsgMatchCancelled, protocol.RoomRef{RoomID: r.id})
	r.log.Info("match cancelled")

	if r.opts.Hooks.OnCancel != nil {
		r.opts.Hooks.OnCancel(Result{
			RoomID:         r.id,
			TournamentCode: r.opts.TournamentCode,
			BracketMatchID: r.opts.BracketMatchID,
			Cancelled:      true,
		})
	}
}

func (r *Room) View() View {
	v := View{
		ID:             r.id,
		TournamentCode: r.opts.TournamentCode,
		BracketMatchID: r.opts.BracketMatchID,
		Seats:          [2]Seat{*r.seats[0], *r.seats[1]},
		State:          r.sim.State(),
		CreatedAt:      r.createdAt,
	}
	if !r.deadline.IsZero() {
		d := r.deadline
		v.Deadline = &d
	}
	return v
}
