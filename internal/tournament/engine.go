// Package tournament runs single-elimination events on top of the bracket
// package. It tracks who is registered and reachable, turns claimed bracket
// matches into rooms, and feeds room results back into the bracket.
package tournament

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/bracket"
	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

// Engine is one tournament. Like the rooms it drives, it is only touched from
// the scheduler's loop.
type Engine struct {
	deps     Deps
	log      *zap.Logger
	code     string
	name     string
	hostID   string
	capacity int
	created  time.Time
	seq      uint64

	participants []*Participant
	bracket      *bracket.Engine
	active       map[string]string // bracket match id -> room id
	saved        bool
}

func New(code, name string, capacity int, hostID string, deps Deps) (*Engine, error) {
	c, err := NormalizeCapacity(capacity)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Tournament " + code
	}
	e := &Engine{
		deps:     deps,
		log:      deps.Log.Named("tournament").With(zap.String("code", code)),
		code:     code,
		name:     name,
		hostID:   hostID,
		capacity: c,
		active:   make(map[string]string),
	}
	e.created = deps.Clock.Now()
	return e, nil
}

func (e *Engine) Code() string { return e.code }

func (e *Engine) Status() Status {
	switch {
	case e.bracket == nil:
		return StatusRegistering
	case e.champion() != "":
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

func (e *Engine) champion() string {
	if e.bracket == nil {
		return ""
	}
	c, ok := e.bracket.Champion()
	if !ok {
		return ""
	}
	return c.ID
}

func (e *Engine) participant(playerID string) *Participant {
	for _, p := range e.participants {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (e *Engine) Has(playerID string) bool { return e.participant(playerID) != nil }

// Contending reports whether playerID is still alive in a running bracket.
func (e *Engine) Contending(playerID string) bool {
	p := e.participant(playerID)
	return p != nil && !p.Eliminated && e.Status() == StatusInProgress
}

// ConnID is the connection playerID is bound to, or "" if unknown.
func (e *Engine) ConnID(playerID string) string {
	if p := e.participant(playerID); p != nil {
		return p.ConnID
	}
	return ""
}

func (e *Engine) Join(alias, playerID, connID string) error {
	alias = strings.TrimSpace(alias)
	switch {
	case e.Status() != StatusRegistering:
		return ErrAlreadyStarted
	case alias == "":
		return ErrInvalidAlias
	case e.participant(playerID) != nil:
		return ErrAlreadyJoined
	case len(e.participants) >= e.capacity:
		return ErrFull
	}
	for _, p := range e.participants {
		if strings.EqualFold(p.Alias, alias) {
			return ErrAliasTaken
		}
	}

	now := e.deps.Clock.Now()
	e.participants = append(e.participants, &Participant{
		Alias:      alias,
		PlayerID:   playerID,
		ConnID:     connID,
		Connected:  true,
		JoinedAt:   now,
		LastSeenAt: now,
	})
	e.log.Info("player joined", zap.String("player", playerID), zap.String("alias", alias))
	e.changed()
	return nil
}

// Leave removes playerID during registration. Once started it only marks the
// player as gone; their matches resolve through the normal forfeit path.
func (e *Engine) Leave(playerID string) error {
	p := e.participant(playerID)
	if p == nil {
		return ErrNotParticipant
	}
	if e.Status() != StatusRegistering {
		e.HandleDisconnect(playerID)
		return nil
	}
	for i, q := range e.participants {
		if q == p {
			e.participants = append(e.participants[:i], e.participants[i+1:]...)
			break
		}
	}
	if playerID == e.hostID && len(e.participants) > 0 {
		e.hostID = e.participants[0].PlayerID
	}
	e.send(p.ConnID, protocol.MsgTournamentUpdate, protocol.TournamentUpdate{State: e.State()})
	e.changed()
	return nil
}

// Empty reports whether registration has lost every participant.
func (e *Engine) Empty() bool { return len(e.participants) == 0 }

// SetReady toggles readiness. A full tournament starts once everyone is ready.
func (e *Engine) SetReady(playerID string, ready bool) error {
	p := e.participant(playerID)
	if p == nil {
		return ErrNotParticipant
	}
	if e.Status() != StatusRegistering {
		return ErrAlreadyStarted
	}
	p.Ready = ready
	if len(e.participants) == e.capacity && e.allReady() {
		return e.start()
	}
	e.changed()
	return nil
}

func (e *Engine) allReady() bool {
	for _, p := range e.participants {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (e *Engine) Start(playerID string) error {
	if e.Status() != StatusRegistering {
		return ErrAlreadyStarted
	}
	if playerID != e.hostID {
		return ErrNotHost
	}
	return e.start()
}

func (e *Engine) start() error {
	if len(e.participants) < 2 {
		return ErrNotEnoughPlayers
	}
	seeds := make([]bracket.Seed, len(e.participants))
	for i, p := range e.participants {
		seeds[i] = bracket.Seed{ID: p.PlayerID, Alias: p.Alias}
	}
	b, err := bracket.New(seeds)
	if err != nil {
		return err
	}
	if err := b.Start(); err != nil {
		return err
	}
	e.bracket = b
	e.log.Info("tournament started",
		zap.Int("players", len(seeds)),
		zap.Int("rounds", bracket.RoundCount(len(seeds))))
	e.changed()
	e.Dispatch()
	return nil
}

// Dispatch turns every playable pending match into a room. Each match is
// claimed before its players are checked, so a player can never be handed
// two rooms even if dispatch re-enters. Matches whose players are not both
// reachable go back to pending.
func (e *Engine) Dispatch() int {
	if e.Status() != StatusInProgress {
		return 0
	}
	created := 0
	for _, m := range e.bracket.Pending() {
		if err := e.bracket.MarkActive(m.ID); err != nil {
			continue
		}
		left, right := e.available(m.Left.ID), e.available(m.Right.ID)
		if left == nil || right == nil {
			_ = e.bracket.Release(m.ID)
			continue
		}

		left.InMatch, right.InMatch = true, true
		r, err := e.deps.Rooms.CreateRoom(matchmaking.Pairing{
			First:  matchmaking.Ticket{ConnID: left.ConnID, PlayerID: left.PlayerID, Name: left.Alias},
			Second: matchmaking.Ticket{ConnID: right.ConnID, PlayerID: right.PlayerID, Name: right.Alias},
		}, room.Options{
			TournamentCode: e.code,
			BracketMatchID: m.ID,
			Hooks: room.Hooks{
				OnComplete: func(res room.Result) { e.matchCompleted(m.ID, res) },
				OnCancel:   func(room.Result) { e.matchCancelled(m.ID) },
			},
		})
		if err != nil {
			left.InMatch, right.InMatch = false, false
			_ = e.bracket.Release(m.ID)
			e.log.Warn("room creation failed", zap.String("match", m.ID), zap.Error(err))
			continue
		}
		e.active[m.ID] = r.ID()
		created++

		for _, pair := range [][2]*Participant{{left, right}, {right, left}} {
			e.send(pair[0].ConnID, protocol.MsgTournamentMatchReady, protocol.TournamentMatchReady{
				Code:     e.code,
				MatchID:  m.ID,
				RoomID:   r.ID(),
				Opponent: protocol.Opponent{PlayerID: pair[1].PlayerID, Name: pair[1].Alias},
			})
		}
		e.log.Info("match dispatched",
			zap.String("match", m.ID),
			zap.String("room", r.ID()),
			zap.String("left", left.PlayerID),
			zap.String("right", right.PlayerID))
	}
	if created > 0 {
		e.changed()
	}
	return created
}

func (e *Engine) available(playerID string) *Participant {
	p := e.participant(playerID)
	if p == nil || !p.Connected || p.InMatch {
		return nil
	}
	return p
}

func (e *Engine) freeMatchPlayers(matchID string) {
	delete(e.active, matchID)
	m, ok := e.bracket.Match(matchID)
	if !ok {
		return
	}
	for _, p := range e.participants {
		if m.Has(p.PlayerID) {
			p.InMatch = false
		}
	}
}

func (e *Engine) matchCompleted(matchID string, res room.Result) {
	e.freeMatchPlayers(matchID)
	if err := e.bracket.RecordResult(matchID, res.WinnerID); err != nil {
		e.log.Error("recording result", zap.String("match", matchID), zap.Error(err))
		return
	}
	e.log.Info("match result recorded",
		zap.String("match", matchID),
		zap.String("winner", res.WinnerID),
		zap.Bool("forfeit", res.Forfeit))

	if champ := e.champion(); champ != "" {
		alias := e.participant(champ).Alias
		for _, p := range e.participants {
			e.send(p.ConnID, protocol.MsgTournamentFinished, protocol.TournamentFinished{Code: e.code, Champion: alias})
		}
		e.log.Info("tournament finished", zap.String("champion", champ))
	}
	e.changed()
	e.Dispatch()
}

func (e *Engine) matchCancelled(matchID string) {
	e.freeMatchPlayers(matchID)
	if err := e.bracket.Release(matchID); err != nil {
		e.log.Warn("releasing cancelled match", zap.String("match", matchID), zap.Error(err))
	}
	e.changed()
	e.Dispatch()
}

func (e *Engine) HandleDisconnect(playerID string) {
	p := e.participant(playerID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false
	p.LastSeenAt = e.deps.Clock.Now()
	e.changed()
}

// Reconnect rebinds playerID to connID and retries dispatch.
func (e *Engine) Reconnect(playerID, connID string) {
	p := e.participant(playerID)
	if p == nil {
		return
	}
	p.ConnID = connID
	p.Connected = true
	p.LastSeenAt = e.deps.Clock.Now()
	e.changed()
	e.Dispatch()
}

func (e *Engine) State() State {
	st := State{
		Code:      e.code,
		Name:      e.name,
		HostID:    e.hostID,
		Capacity:  e.capacity,
		Status:    e.Status(),
		CreatedAt: e.created,
	}
	st.Participants = make([]Participant, len(e.participants))
	for i, p := range e.participants {
		st.Participants[i] = *p
		if e.bracket != nil {
			st.Participants[i].Eliminated = e.bracket.Eliminated(p.PlayerID)
		}
	}
	if e.bracket != nil {
		snap := e.bracket.Serialize()
		st.Bracket = &snap
		st.CurrentRound = e.bracket.CurrentRound()
		if champ := e.champion(); champ != "" {
			st.Champion = e.participant(champ).Alias
		}
	}
	return st
}

func (e *Engine) Summary() Summary {
	return Summary{
		Code:         e.code,
		Name:         e.name,
		Capacity:     e.capacity,
		Participants: len(e.participants),
		Status:       e.Status(),
	}
}

func (e *Engine) send(connID, msgType string, payload any) {
	if connID == "" {
		return
	}
	e.deps.Notify.Send(connID, msgType, payload)
}

// changed broadcasts the new state and persists it.
func (e *Engine) changed() {
	st := e.State()
	for _, p := range e.participants {
		if p.Connected {
			e.send(p.ConnID, protocol.MsgTournamentUpdate, protocol.TournamentUpdate{State: st})
		}
	}
	e.persist(st)
}

func (e *Engine) persist(st State) {
	raw, err := json.Marshal(st)
	if err != nil {
		e.log.Error("encoding tournament state", zap.Error(err))
		return
	}
	rec := store.TournamentRecord{
		Code:      e.code,
		Name:      e.name,
		HostID:    e.hostID,
		Capacity:  e.capacity,
		Status:    string(st.Status),
		State:     raw,
		CreatedAt: st.CreatedAt,
		UpdatedAt: e.deps.Clock.Now(),
	}
	if !e.saved {
		e.saved = true
		e.deps.Recorder.SaveTournament(rec)
		return
	}
	e.deps.Recorder.UpdateTournament(e.code, rec)
}

var errCorruptState = errors.New("corrupt tournament state")

// Restore rebuilds a tournament from its persisted record. Rooms do not
// survive a restart, so claimed matches go back to pending and every player
// starts disconnected until they reconnect.
func Restore(rec store.TournamentRecord, deps Deps) (*Engine, error) {
	var st State
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptState, err)
	}
	e, err := New(rec.Code, st.Name, st.Capacity, st.HostID, deps)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptState, err)
	}
	e.created = st.CreatedAt
	e.saved = true
	for _, p := range st.Participants {
		p.Connected, p.InMatch, p.ConnID = false, false, ""
		e.participants = append(e.participants, &p)
	}
	if st.Bracket != nil {
		b, err := bracket.Hydrate(*st.Bracket)
		if err != nil {
			return nil, err
		}
		for _, round := range b.Rounds() {
			for _, m := range round {
				if m.Status == bracket.MatchCurrent {
					_ = b.Release(m.ID)
				}
			}
		}
		e.bracket = b
	}
	return e, nil
}
