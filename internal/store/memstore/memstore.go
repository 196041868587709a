// Package memstore keeps snapshots in process memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	matches     map[string]store.MatchRecord
	tournaments map[string]store.TournamentRecord
}

func New() *Store {
	return &Store{
		matches:     make(map[string]store.MatchRecord),
		tournaments: make(map[string]store.TournamentRecord),
	}
}

func (s *Store) SaveMatch(_ context.Context, rec store.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[rec.ID] = rec
	return nil
}

func (s *Store) UpdateMatch(_ context.Context, id string, u store.MatchUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	rec.Apply(u)
	s.matches[id] = rec
	return nil
}

func (s *Store) GetMatch(_ context.Context, id string) (store.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.matches[id]
	if !ok {
		return store.MatchRecord{}, fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) SaveTournament(_ context.Context, rec store.TournamentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tournaments[rec.Code] = rec
	return nil
}

func (s *Store) UpdateTournament(_ context.Context, code string, rec store.TournamentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tournaments[code]; !ok {
		return fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	rec.Code = code
	s.tournaments[code] = rec
	return nil
}

func (s *Store) GetTournament(_ context.Context, code string) (store.TournamentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tournaments[code]
	if !ok {
		return store.TournamentRecord{}, fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) ListActive(_ context.Context) ([]store.TournamentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.TournamentRecord
	for _, rec := range s.tournaments {
		if rec.Status != store.TournamentCompleted {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Close() error { return nil }
