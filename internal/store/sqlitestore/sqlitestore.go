// Package sqlitestore persists snapshots to a SQLite file through sqlx.
// Schema changes ship as embedded golang-migrate migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sqlx.DB
}

// Open connects to the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	// m.Close would close db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

type matchRow struct {
	ID             string     `db:"id"`
	LeftPlayerID   string     `db:"left_player_id"`
	LeftName       string     `db:"left_name"`
	RightPlayerID  string     `db:"right_player_id"`
	RightName      string     `db:"right_name"`
	Status         string     `db:"status"`
	LeftScore      int        `db:"left_score"`
	RightScore     int        `db:"right_score"`
	WinnerID       string     `db:"winner_id"`
	Forfeit        bool       `db:"forfeit"`
	TournamentCode string     `db:"tournament_code"`
	BracketMatchID string     `db:"bracket_match_id"`
	CreatedAt      time.Time  `db:"created_at"`
	StartedAt      *time.Time `db:"started_at"`
	EndedAt        *time.Time `db:"ended_at"`
}

func (r matchRow) record() store.MatchRecord {
	return store.MatchRecord(r)
}

type tournamentRow struct {
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	HostID    string    `db:"host_id"`
	Capacity  int       `db:"capacity"`
	Status    string    `db:"status"`
	State     string    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tournamentRow) record() store.TournamentRecord {
	return store.TournamentRecord{
		Code:      r.Code,
		Name:      r.Name,
		HostID:    r.HostID,
		Capacity:  r.Capacity,
		Status:    r.Status,
		State:     json.RawMessage(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toTournamentRow(rec store.TournamentRecord) tournamentRow {
	return tournamentRow{
		Code:      rec.Code,
		Name:      rec.Name,
		HostID:    rec.HostID,
		Capacity:  rec.Capacity,
		Status:    rec.Status,
		State:     string(rec.State),
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

const (
	insertMatch = `INSERT OR REPLACE INTO matches
		(id, left_player_id, left_name, right_player_id, right_name, status, left_score, right_score,
		 winner_id, forfeit, tournament_code, bracket_match_id, created_at, started_at, ended_at)
		VALUES (:id, :left_player_id, :left_name, :right_player_id, :right_name, :status, :left_score, :right_score,
		 :winner_id, :forfeit, :tournament_code, :bracket_match_id, :created_at, :started_at, :ended_at)`

	insertTournament = `INSERT OR REPLACE INTO tournaments
		(code, name, host_id, capacity, status, state, created_at, updated_at)
		VALUES (:code, :name, :host_id, :capacity, :status, :state, :created_at, :updated_at)`

	updateTournament = `UPDATE tournaments SET name = :name, host_id = :host_id, capacity = :capacity,
		status = :status, state = :state, updated_at = :updated_at WHERE code = :code`
)

func (s *Store) SaveMatch(ctx context.Context, rec store.MatchRecord) error {
	row := matchRow(rec)
	row.CreatedAt = row.CreatedAt.UTC()
	_, err := s.db.NamedExecContext(ctx, insertMatch, row)
	return err
}

func (s *Store) UpdateMatch(ctx context.Context, id string, u store.MatchUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.LeftScore != nil {
		add("left_score", *u.LeftScore)
	}
	if u.RightScore != nil {
		add("right_score", *u.RightScore)
	}
	if u.WinnerID != nil {
		add("winner_id", *u.WinnerID)
	}
	if u.Forfeit != nil {
		add("forfeit", *u.Forfeit)
	}
	if u.StartedAt != nil {
		add("started_at", u.StartedAt.UTC())
	}
	if u.EndedAt != nil {
		add("ended_at", u.EndedAt.UTC())
	}

	var (
		res sql.Result
		err error
	)
	if len(sets) == 0 {
		res, err = s.db.ExecContext(ctx, "UPDATE matches SET id = id WHERE id = ?", id)
	} else {
		args = append(args, id)
		res, err = s.db.ExecContext(ctx, "UPDATE matches SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	}
	if err != nil {
		return err
	}
	return expectRow(res, "match", id)
}

func (s *Store) GetMatch(ctx context.Context, id string) (store.MatchRecord, error) {
	var row matchRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM matches WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.MatchRecord{}, fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.MatchRecord{}, err
	}
	return row.record(), nil
}

func (s *Store) SaveTournament(ctx context.Context, rec store.TournamentRecord) error {
	_, err := s.db.NamedExecContext(ctx, insertTournament, toTournamentRow(rec))
	return err
}

func (s *Store) UpdateTournament(ctx context.Context, code string, rec store.TournamentRecord) error {
	rec.Code = code
	res, err := s.db.NamedExecContext(ctx, updateTournament, toTournamentRow(rec))
	if err != nil {
		return err
	}
	return expectRow(res, "tournament", code)
}

func (s *Store) GetTournament(ctx context.Context, code string) (store.TournamentRecord, error) {
	var row tournamentRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM tournaments WHERE code = ?", code)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TournamentRecord{}, fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return store.TournamentRecord{}, err
	}
	return row.record(), nil
}

func (s *Store) ListActive(ctx context.Context) ([]store.TournamentRecord, error) {
	var rows []tournamentRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM tournaments WHERE status != ? ORDER BY created_at", store.TournamentCompleted)
	if err != nil {
		return nil, err
	}
	out := make([]store.TournamentRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }

func expectRow(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, store.ErrNotFound)
	}
	return nil
}
