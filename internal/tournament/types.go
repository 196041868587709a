package tournament

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/bracket"
	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/sched"
	"github.com/DoyleJ11/pong-backend/internal/store"
)

var (
	ErrAlreadyStarted   = errors.New("tournament already started")
	ErrFull             = errors.New("tournament is full")
	ErrAliasTaken       = errors.New("alias already taken")
	ErrAlreadyJoined    = errors.New("player already registered")
	ErrInvalidAlias     = errors.New("alias must not be empty")
	ErrNotParticipant   = errors.New("player is not registered")
	ErrNotHost          = errors.New("only the host can start the tournament")
	ErrNotEnoughPlayers = errors.New("tournament needs at least two players")
	ErrInvalidCapacity  = errors.New("capacity must be between 2 and 64")
	ErrNotFound         = errors.New("tournament not found")
	ErrInTournament     = errors.New("player is already in an active tournament")
)

const (
	MinCapacity = 2
	MaxCapacity = 64
)

type Status string

const (
	StatusRegistering Status = "registering"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

type Participant struct {
	Alias      string    `json:"alias"`
	PlayerID   string    `json:"playerId"`
	ConnID     string    `json:"-"`
	Ready      bool      `json:"ready"`
	Connected  bool      `json:"connected"`
	InMatch    bool      `json:"inMatch"`
	Eliminated bool      `json:"eliminated"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// State is a value snapshot of one tournament, and its persisted form.
type State struct {
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	HostID       string            `json:"hostId"`
	Capacity     int               `json:"capacity"`
	Status       Status            `json:"status"`
	Participants []Participant     `json:"participants"`
	Bracket      *bracket.Snapshot `json:"bracket,omitempty"`
	CurrentRound int               `json:"currentRound"`
	Champion     string            `json:"champion,omitempty"` // alias
	CreatedAt    time.Time         `json:"createdAt"`
}

// Summary is the listing form of a tournament.
type Summary struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	Participants int    `json:"participants"`
	Status       Status `json:"status"`
}

// RoomCreator materialises a bracket match as a live room.
type RoomCreator interface {
	CreateRoom(p matchmaking.Pairing, opts room.Options) (*room.Room, error)
}

type Notifier interface {
	Send(connID, msgType string, payload any)
}

type Recorder interface {
	SaveTournament(rec store.TournamentRecord)
	UpdateTournament(code string, rec store.TournamentRecord)
}

// Deps are the collaborators every tournament shares.
type Deps struct {
	Rooms    RoomCreator
	Notify   Notifier
	Recorder Recorder
	Clock    sched.Scheduler
	Log      *zap.Logger
}

// NormalizeCapacity rounds n up to a power of two and rejects sizes outside
// MinCapacity..MaxCapacity.
func NormalizeCapacity(n int) (int, error) {
	if n < 1 {
		return 0, ErrInvalidCapacity
	}
	c := 1
	for c < n {
		c <<= 1
	}
	if c < MinCapacity || c > MaxCapacity {
		return 0, ErrInvalidCapacity
	}
	return c, nil
}
