// Package pgstore persists snapshots to Postgres through gorm.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

type matchModel struct {
	ID             string `gorm:"primaryKey"`
	LeftPlayerID   string `gorm:"not null"`
	LeftName       string
	RightPlayerID  string `gorm:"not null"`
	RightName      string
	Status         string `gorm:"not null;index"`
	LeftScore      int
	RightScore     int
	WinnerID       string
	Forfeit        bool
	TournamentCode string `gorm:"index"`
	BracketMatchID string
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
}

func (matchModel) TableName() string { return "matches" }

type tournamentModel struct {
	Code      string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	HostID    string
	Capacity  int
	Status    string `gorm:"not null;index"`
	State     string `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (tournamentModel) TableName() string { return "tournaments" }

type Store struct {
	db *gorm.DB
}

// Open connects with dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&matchModel{}, &tournamentModel{}); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) SaveMatch(ctx context.Context, rec store.MatchRecord) error {
	m := matchModel(rec)
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) UpdateMatch(ctx context.Context, id string, u store.MatchUpdate) error {
	fields := map[string]any{}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	if u.LeftScore != nil {
		fields["left_score"] = *u.LeftScore
	}
	if u.RightScore != nil {
		fields["right_score"] = *u.RightScore
	}
	if u.WinnerID != nil {
		fields["winner_id"] = *u.WinnerID
	}
	if u.Forfeit != nil {
		fields["forfeit"] = *u.Forfeit
	}
	if u.StartedAt != nil {
		fields["started_at"] = *u.StartedAt
	}
	if u.EndedAt != nil {
		fields["ended_at"] = *u.EndedAt
	}
	if len(fields) == 0 {
		_, err := s.GetMatch(ctx, id)
		return err
	}

	res := s.db.WithContext(ctx).Model(&matchModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (store.MatchRecord, error) {
	var m matchModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.MatchRecord{}, fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.MatchRecord{}, err
	}
	return store.MatchRecord(m), nil
}

func toModel(rec store.TournamentRecord) tournamentModel {
	return tournamentModel{
		Code:      rec.Code,
		Name:      rec.Name,
		HostID:    rec.HostID,
		Capacity:  rec.Capacity,
		Status:    rec.Status,
		State:     string(rec.State),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func (m tournamentModel) record() store.TournamentRecord {
	return store.TournamentRecord{
		Code:      m.Code,
		Name:      m.Name,
		HostID:    m.HostID,
		Capacity:  m.Capacity,
		Status:    m.Status,
		State:     json.RawMessage(m.State),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (s *Store) SaveTournament(ctx context.Context, rec store.TournamentRecord) error {
	m := toModel(rec)
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) UpdateTournament(ctx context.Context, code string, rec store.TournamentRecord) error {
	rec.Code = code
	m := toModel(rec)
	res := s.db.WithContext(ctx).Model(&tournamentModel{}).Where("code = ?", code).
		Select("name", "host_id", "capacity", "status", "state", "updated_at").Updates(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	return nil
}

func (s *Store) GetTournament(ctx context.Context, code string) (store.TournamentRecord, error) {
	var m tournamentModel
	err := s.db.WithContext(ctx).First(&m, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.TournamentRecord{}, fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return store.TournamentRecord{}, err
	}
	return m.record(), nil
}

func (s *Store) ListActive(ctx context.Context) ([]store.TournamentRecord, error) {
	var models []tournamentModel
	err := s.db.WithContext(ctx).
		Where("status <> ?", store.TournamentCompleted).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.TournamentRecord, len(models))
	for i, m := range models {
		out[i] = m.record()
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
