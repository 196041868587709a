// Package store defines the snapshot persistence contract. Backends live in
// the subpackages; the game core only ever talks to a Recorder.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

const (
	MatchWaiting   = "waiting"
	MatchPlaying   = "playing"
	MatchPaused    = "paused"
	MatchFinished  = "finished"
	MatchCancelled = "cancelled"

	TournamentRegistering = "registering"
	TournamentInProgress  = "in_progress"
	TournamentCompleted   = "completed"
)

type MatchRecord struct {
	ID             string     `json:"id"`
	LeftPlayerID   string     `json:"leftPlayerId"`
	LeftName       string     `json:"leftName"`
	RightPlayerID  string     `json:"rightPlayerId"`
	RightName      string     `json:"rightName"`
	Status         string     `json:"status"`
	LeftScore      int        `json:"leftScore"`
	RightScore     int        `json:"rightScore"`
	WinnerID       string     `json:"winnerId,omitempty"`
	Forfeit        bool       `json:"forfeit"`
	TournamentCode string     `json:"tournamentCode,omitempty"`
	BracketMatchID string     `json:"bracketMatchId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}

// MatchUpdate is a partial update; nil fields are left alone.
type MatchUpdate struct {
	Status     *string
	LeftScore  *int
	RightScore *int
	WinnerID   *string
	Forfeit    *bool
	StartedAt  *time.Time
	EndedAt    *time.Time
}

func (r *MatchRecord) Apply(u MatchUpdate) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.LeftScore != nil {
		r.LeftScore = *u.LeftScore
	}
	if u.RightScore != nil {
		r.RightScore = *u.RightScore
	}
	if u.WinnerID != nil {
		r.WinnerID = *u.WinnerID
	}
	if u.Forfeit != nil {
		r.Forfeit = *u.Forfeit
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		r.StartedAt = &t
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		r.EndedAt = &t
	}
}

// TournamentRecord carries the full tournament snapshot as opaque JSON.
type TournamentRecord struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	HostID    string          `json:"hostId"`
	Capacity  int             `json:"capacity"`
	Status    string          `json:"status"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type SnapshotStore interface {
	SaveMatch(ctx context.Context, rec MatchRecord) error
	UpdateMatch(ctx context.Context, id string, u MatchUpdate) error
	GetMatch(ctx context.Context, id string) (MatchRecord, error)

	SaveTournament(ctx context.Context, rec TournamentRecord) error
	UpdateTournament(ctx context.Context, code string, rec TournamentRecord) error
	GetTournament(ctx context.Context, code string) (TournamentRecord, error)
	// ListActive returns tournaments that have not completed.
	ListActive(ctx context.Context) ([]TournamentRecord, error)

	Close() error
}

func Ptr[T any](v T) *T { return &v }
