package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/store"
	"github.com/DoyleJ11/pong-backend/internal/tournament"
)

var ErrClosed = errors.New("hub is shut down")

const DefaultOutboxSize = 256

type HubMsg interface{ isHubMsg() }

// Connect registers a socket for PlayerID. Reply receives the new connection
// id and the outbox the socket writer drains.
type Connect struct {
	PlayerID string
	Name     string
	Reply    chan Conn
}

type Disconnect struct {
	ConnID string
}

type FromClient struct {
	ConnID string
	Frame  []byte
}

// Task runs Fn on the hub loop. Timers and synchronous reads use it.
type Task struct {
	Fn func()
}

type ShutdownHub struct{}

func (Connect) isHubMsg()     {}
func (Disconnect) isHubMsg()  {}
func (FromClient) isHubMsg()  {}
func (Task) isHubMsg()        {}
func (ShutdownHub) isHubMsg() {}

type Conn struct {
	ID     string
	Outbox <-chan []byte
}

// Recorder persists both matches and tournaments.
type Recorder interface {
	room.Recorder
	tournament.Recorder
}

type Options struct {
	Room       room.Config
	OutboxSize int
	Recorder   Recorder
	// Clock defaults to a realtime scheduler whose callbacks run on the hub
	// loop.
	Clock sched.Scheduler
	Log   *zap.Logger
}

type client struct {
	playerID string
	name     string
	out      chan []byte
	closed   bool
}

// Hub owns every piece of mutable game state. All of it is touched only from
// the loop goroutine.
type Hub struct {
	inbox  chan HubMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.Logger
	clock  sched.Scheduler

	outboxSize  int
	clients     map[string]*client
	queue       *matchmaking.Queue
	rooms       *room.Manager
	tournaments *tournament.Registry
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	h := &Hub{
		inbox:      make(chan HubMsg, 256),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log.Named("hub"),
		outboxSize: opts.OutboxSize,
		clients:    make(map[string]*client),
		queue:      matchmaking.NewQueue(),
	}
	h.clock = opts.Clock
	if h.clock == nil {
		h.clock = sched.NewRealtime(func(fn func()) bool { return h.post(Task{Fn: fn}) })
	}
	var rec Recorder = nopRecorder{}
	if opts.Recorder != nil {
		rec = opts.Recorder
	}
	h.rooms = room.NewManager(h.clock, h, rec, opts.Room, log)
	h.tournaments = tournament.NewRegistry(tournament.Deps{
		Rooms:    h.rooms,
		Notify:   h,
		Recorder: rec,
		Clock:    h.clock,
		Log:      log,
	})
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) post(m HubMsg) bool {
	select {
	case <-h.ctx.Done():
		return false
	case h.inbox <- m:
		return true
	}
}

// Do runs fn on the loop and waits for it to finish.
func (h *Hub) Do(fn func()) error {
	finished := make(chan struct{})
	if !h.post(Task{Fn: func() { fn(); close(finished) }}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

func (h *Hub) Connect(playerID, name string) (Conn, error) {
	reply := make(chan Conn, 1)
	if !h.post(Connect{PlayerID: playerID, Name: name, Reply: reply}) {
		return Conn{}, ErrClosed
	}
	select {
	case c := <-reply:
		return c, nil
	case <-h.done:
		return Conn{}, ErrClosed
	}
}

func (h *Hub) Disconnect(connID string) { h.post(Disconnect{ConnID: connID}) }

func (h *Hub) Deliver(connID string, frame []byte) { h.post(FromClient{ConnID: connID, Frame: frame}) }

func (h *Hub) Shutdown() {
	if h.post(ShutdownHub{}) {
		<-h.done
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				msg.Reply <- h.connect(msg.PlayerID, msg.Name)

			case Disconnect:
				h.disconnect(msg.ConnID)

			case FromClient:
				h.handleFrame(msg.ConnID, msg.Frame)

			case Task:
				msg.Fn()

			case ShutdownHub:
				h.cancel()
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		h.drop(c)
		delete(h.clients, id)
	}
	h.log.Info("hub stopped")
}

func (h *Hub) connect(playerID, name string) Conn {
	c := &client{playerID: playerID, name: name, out: make(chan []byte, h.outboxSize)}
	id := uuid.NewString()
	h.clients[id] = c
	h.Send(id, protocol.MsgWelcome, protocol.Welcome{PlayerID: playerID, ConnID: id})
	if h.rooms.Reconnect(playerID, id) {
		h.log.Info("player rejoined match", zap.String("player", playerID))
	}
	h.tournaments.Reconnect(playerID, id)
	return Conn{ID: id, Outbox: c.out}
}

// disconnect releases everything held by connID. Tournament presence goes
// first so a cancelled bracket room is not handed straight back to the
// departed player.
func (h *Hub) disconnect(connID string) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	h.drop(c)
	if h.queue.Remove(connID) {
		h.broadcastQueuePositions()
	}
	h.tournaments.HandleDisconnect(c.playerID, connID)
	h.rooms.HandleDisconnect(connID)
}

// drop closes the outbox so the socket writer exits. The client stays
// registered until its Disconnect arrives.
func (h *Hub) drop(c *client) {
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// Send implements room.Notifier and tournament.Notifier. A client whose
// outbox is full is dropped rather than stalling the loop.
func (h *Hub) Send(connID, msgType string, payload any) {
	c, ok := h.clients[connID]
	if !ok || c.closed {
		return
	}
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		h.log.Error("encode outbound message", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case c.out <- frame:
	default:
		h.log.Warn("dropping slow client", zap.String("conn", connID), zap.String("player", c.playerID))
		h.drop(c)
	}
}

func (h *Hub) sendError(connID, code string, err error) {
	h.Send(connID, protocol.MsgError, protocol.Error{Code: code, Message: err.Error()})
}

func (h *Hub) broadcastQueuePositions() {
	for id := range h.clients {
		if pos := h.queue.Position(id); pos > 0 {
			h.Send(id, protocol.MsgQueueStatus, protocol.QueueStatus{Position: pos})
		}
	}
}

// Snapshot reads, safe from any goroutine.

func (h *Hub) Tournaments() ([]tournament.Summary, error) {
	var out []tournament.Summary
	err := h.Do(func() { out = h.tournaments.List() })
	return out, err
}

func (h *Hub) Tournament(code string) (tournament.State, bool, error) {
	var (
		st    tournament.State
		found bool
	)
	err := h.Do(func() {
		if e, ok := h.tournaments.Get(code); ok {
			st, found = e.State(), true
		}
	})
	return st, found, err
}

func (h *Hub) Match(id string) (room.View, bool, error) {
	var (
		v     room.View
		found bool
	)
	err := h.Do(func() { v, found = h.rooms.Get(id) })
	return v, found, err
}

// Restore loads unfinished tournaments saved by a previous process.
func (h *Hub) Restore(recs []store.TournamentRecord) (int, error) {
	var n int
	err := h.Do(func() { n = h.tournaments.Restore(recs) })
	return n, err
}

// Stats is a point-in-time count of live state.
type Stats struct {
	Clients     int `json:"clients"`
	Queued      int `json:"queued"`
	Rooms       int `json:"rooms"`
	Tournaments int `json:"tournaments"`
}

func (h *Hub) Stats() (Stats, error) {
	var s Stats
	err := h.Do(func() {
		s = Stats{
			Clients:     len(h.clients),
			Queued:      h.queue.Len(),
			Rooms:       h.rooms.Len(),
			Tournaments: len(h.tournaments.List()),
		}
	})
	return s, err
}

func (h *Hub) now() time.Time { return h.clock.Now() }

type nopRecorder struct{}

func (nopRecorder) SaveMatch(store.MatchRecord)                     {}
func (nopRecorder) UpdateMatch(string, store.MatchUpdate)           {}
func (nopRecorder) SaveTournament(store.TournamentRecord)           {}
func (nopRecorder) UpdateTournament(string, store.TournamentRecord) {}
