package protocol

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/pong-backend/internal/pong"
)

// Client -> Server
const (
	MsgJoinQueue        = "join-queue"
	MsgLeaveQueue       = "leave-queue"
	MsgSubmitInput      = "submit-input"
	MsgMarkReady        = "mark-ready"
	MsgForfeit          = "forfeit"
	MsgTournamentCreate = "tournament-create"
	MsgTournamentJoin   = "tournament-join"
	MsgTournamentLeave  = "tournament-leave"
	MsgTournamentStart  = "tournament-start"
	MsgTournamentList   = "tournament-list"
)

// Server -> Client
const (
	MsgWelcome              = "welcome"
	MsgQueueStatus          = "queue-status"
	MsgMatchReady           = "match-ready"
	MsgMatchStarted         = "match-started"
	MsgStateTick            = "state-tick"
	MsgMatchEnded           = "match-ended"
	MsgMatchCancelled       = "match-cancelled"
	MsgMatchResumed         = "match-resumed"
	MsgPlayerDisconnected   = "player-disconnected"
	MsgTournamentUpdate     = "tournament-update"
	MsgTournamentMatchReady = "tournament-match-ready"
	MsgTournamentFinished   = "tournament-finished"
	MsgError                = "error"
)

type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

type SubmitInput struct {
	Command string `json:"command"`
}

type MarkReady struct {
	Code  string `json:"code,omitempty"`
	Ready *bool  `json:"ready,omitempty"`
}

type TournamentCreate struct {
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	Capacity int    `json:"capacity"`
}

type TournamentJoin struct {
	Code  string `json:"code"`
	Alias string `json:"alias"`
}

type TournamentRef struct {
	Code string `json:"code"`
}

type Welcome struct {
	PlayerID string `json:"playerId"`
	ConnID   string `json:"connId"`
}

type QueueStatus struct {
	Position int `json:"position"`
}

type Opponent struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type MatchReady struct {
	RoomID       string    `json:"roomId"`
	Side         pong.Side `json:"side"`
	Opponent     Opponent  `json:"opponent"`
	Tournament   string    `json:"tournament,omitempty"`
	BracketMatch string    `json:"bracketMatch,omitempty"`
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

type StateTick struct {
	RoomID string     `json:"roomId"`
	State  pong.State `json:"state"`
}

type MatchEnded struct {
	RoomID   string     `json:"roomId"`
	WinnerID string     `json:"winnerId"`
	LoserID  string     `json:"loserId"`
	Score    pong.Score `json:"score"`
	Forfeit  bool       `json:"forfeit"`
}

type PlayerDisconnected struct {
	RoomID   string    `json:"roomId"`
	PlayerID string    `json:"playerId"`
	Deadline time.Time `json:"deadline"`
}

type TournamentUpdate struct {
	State any `json:"state"`
}

type TournamentMatchReady struct {
	Code     string   `json:"code"`
	MatchID  string   `json:"matchId"`
	RoomID   string   `json:"roomId"`
	Opponent Opponent `json:"opponent"`
}

type TournamentFinished struct {
	Code     string `json:"code"`
	Champion string `json:"champion"`
}

type TournamentList struct {
	Tournaments any `json:"tournaments"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
