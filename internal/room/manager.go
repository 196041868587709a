package room

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

var (
	ErrPlayerBusy  = errors.New("player already in a live match")
	ErrRoomMissing = errors.New("no room for player")
)

type Manager struct {
	clock  sched.Scheduler
	notify Notifier
	rec    Recorder
	cfg    Config
	log    *zap.Logger
	rng    *rand.Rand
	newID  func() string

	rooms    map[string]*Room
	byConn   map[string]string // connID -> roomID
	byPlayer map[string]string // playerID -> roomID
}

func NewManager(clock sched.Scheduler, n Notifier, rec Recorder, cfg Config, log *zap.Logger) *Manager {
	seed := uint64(clock.Now().UnixNano())
	return &Manager{
		clock:    clock,
		notify:   n,
		rec:      rec,
		cfg:      cfg,
		log:      log.Named("room"),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		newID:    uuid.NewString,
		rooms:    make(map[string]*Room),
		byConn:   make(map[string]string),
		byPlayer: make(map[string]string),
	}
}

// CreateRoom seats p.First on the left and p.Second on the right.
func (m *Manager) CreateRoom(p matchmaking.Pairing, opts Options) (*Room, error) {
	for _, t := range []matchmaking.Ticket{p.First, p.Second} {
		if m.InRoom(t.PlayerID) {
			return nil, fmt.Errorf("%w: %s", ErrPlayerBusy, t.PlayerID)
		}
	}

	id := m.newID()
	user := opts.Hooks
	opts.Hooks = Hooks{
		OnStart: user.OnStart,
		OnComplete: func(res Result) {
			m.scheduleDestroy(id)
			if user.OnComplete != nil {
				user.OnComplete(res)
			}
		},
		OnCancel: func(res Result) {
			m.scheduleDestroy(id)
			if user.OnCancel != nil {
				user.OnCancel(res)
			}
		},
	}

	left := Seat{PlayerID: p.First.PlayerID, ConnID: p.First.ConnID, Name: p.First.Name}
	right := Seat{PlayerID: p.Second.PlayerID, ConnID: p.Second.ConnID, Name: p.Second.Name}
	rng := rand.New(rand.NewPCG(m.rng.Uint64(), m.rng.Uint64()))
	r := newRoom(id, left, right, opts, m.cfg, m.clock, rng, m.notify, m.rec, m.log)

	m.rooms[id] = r
	for _, s := range r.seats {
		m.byConn[s.ConnID] = id
		m.byPlayer[s.PlayerID] = id
	}

	m.rec.SaveMatch(store.MatchRecord{
		ID:             id,
		LeftPlayerID:   left.PlayerID,
		LeftName:       left.Name,
		RightPlayerID:  right.PlayerID,
		RightName:      right.Name,
		Status:         store.MatchWaiting,
		TournamentCode: opts.TournamentCode,
		BracketMatchID: opts.BracketMatchID,
		CreatedAt:      r.createdAt,
	})
	for _, s := range r.seats {
		opp := r.other(s)
		m.notify.Send(s.ConnID, protocol.MsgMatchReady, protocol.MatchReady{
			RoomID:       id,
			Side:         s.Side,
			Opponent:     protocol.Opponent{PlayerID: opp.PlayerID, Name: opp.Name},
			Tournament:   opts.TournamentCode,
			BracketMatch: opts.BracketMatchID,
		})
	}
	m.log.Info("room created",
		zap.String("room", id),
		zap.String("left", left.PlayerID),
		zap.String("right", right.PlayerID),
		zap.String("tournament", opts.TournamentCode))
	return r, nil
}

func (m *Manager) scheduleDestroy(id string) {
	m.clock.AfterFunc(m.cfg.CleanupDelay, func() { m.DestroyRoom(id) })
}

// DestroyRoom drops the room and any index entries still pointing at it.
func (m *Manager) DestroyRoom(id string) {
	r, ok := m.rooms[id]
	if !ok {
		return
	}
	r.stopTicking()
	delete(m.rooms, id)
	for _, s := range r.seats {
		if m.byConn[s.ConnID] == id {
			delete(m.byConn, s.ConnID)
		}
		if m.byPlayer[s.PlayerID] == id {
			delete(m.byPlayer, s.PlayerID)
		}
	}
	m.log.Debug("room destroyed", zap.String("room", id))
}

func (m *Manager) live(playerID string) *Room {
	r := m.rooms[m.byPlayer[playerID]]
	if r == nil || r.ended {
		return nil
	}
	return r
}

// InRoom reports whether playerID is seated in a match that has not ended.
func (m *Manager) InRoom(playerID string) bool { return m.live(playerID) != nil }

func (m *Manager) SetReady(playerID string) error {
	r := m.live(playerID)
	if r == nil {
		return ErrRoomMissing
	}
	return r.SetReady(playerID)
}

func (m *Manager) ApplyInput(playerID string, cmd pong.Command) error {
	r := m.live(playerID)
	if r == nil {
		return ErrRoomMissing
	}
	return r.ApplyInput(playerID, cmd)
}

func (m *Manager) Forfeit(playerID string) error {
	r := m.live(playerID)
	if r == nil {
		return ErrRoomMissing
	}
	return r.Forfeit(playerID)
}

// HandleDisconnect is called when connID closes. Lookup misses are ignored.
func (m *Manager) HandleDisconnect(connID string) {
	id, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	r := m.rooms[id]
	if r == nil {
		return
	}
	for _, s := range r.seats {
		if s.ConnID == connID {
			r.HandleDisconnect(s.PlayerID)
			return
		}
	}
}

// Reconnect moves playerID's live room onto connID. It reports whether a
// room was found.
func (m *Manager) Reconnect(playerID, connID string) bool {
	r := m.live(playerID)
	if r == nil {
		return false
	}
	old := r.seat(playerID).ConnID
	if m.byConn[old] == r.id {
		delete(m.byConn, old)
	}
	if err := r.Reconnect(playerID, connID); err != nil {
		return false
	}
	m.byConn[connID] = r.id
	return true
}

func (m *Manager) Get(id string) (View, bool) {
	r, ok := m.rooms[id]
	if !ok {
		return View{}, false
	}
	return r.View(), true
}

func (m *Manager) RoomFor(playerID string) (View, bool) {
	r := m.live(playerID)
	if r == nil {
		return View{}, false
	}
	return r.View(), true
}

func (m *Manager) Len() int { return len(m.rooms) }
