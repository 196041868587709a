// Package redisstore keeps snapshots in Redis as JSON values. Active
// tournaments are indexed in a sorted set scored by creation time.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

const activeKey = "pong:tournaments:active"

func matchKey(id string) string        { return "pong:match:" + id }
func tournamentKey(code string) string { return "pong:tournament:" + code }

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open connects to addr and checks the connection.
func Open(ctx context.Context, addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return New(client), nil
}

func (s *Store) SaveMatch(ctx context.Context, rec store.MatchRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, matchKey(rec.ID), raw, 0).Err()
}

func (s *Store) UpdateMatch(ctx context.Context, id string, u store.MatchUpdate) error {
	key := matchKey(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := getJSON[store.MatchRecord](ctx, tx, key)
		if err != nil {
			return fmt.Errorf("match %s: %w", id, err)
		}
		rec.Apply(u)
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.Set(ctx, key, raw, 0).Err()
		})
		return err
	}, key)
}

func (s *Store) GetMatch(ctx context.Context, id string) (store.MatchRecord, error) {
	rec, err := getJSON[store.MatchRecord](ctx, s.client, matchKey(id))
	if err != nil {
		return store.MatchRecord{}, fmt.Errorf("match %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) SaveTournament(ctx context.Context, rec store.TournamentRecord) error {
	return s.writeTournament(ctx, rec)
}

func (s *Store) UpdateTournament(ctx context.Context, code string, rec store.TournamentRecord) error {
	n, err := s.client.Exists(ctx, tournamentKey(code)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tournament %s: %w", code, store.ErrNotFound)
	}
	rec.Code = code
	return s.writeTournament(ctx, rec)
}

func (s *Store) writeTournament(ctx context.Context, rec store.TournamentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tournamentKey(rec.Code), raw, 0)
		if rec.Status == store.TournamentCompleted {
			pipe.ZRem(ctx, activeKey, rec.Code)
		} else {
			pipe.ZAdd(ctx, activeKey, redis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: rec.Code})
		}
		return nil
	})
	return err
}

func (s *Store) GetTournament(ctx context.Context, code string) (store.TournamentRecord, error) {
	rec, err := getJSON[store.TournamentRecord](ctx, s.client, tournamentKey(code))
	if err != nil {
		return store.TournamentRecord{}, fmt.Errorf("tournament %s: %w", code, err)
	}
	return rec, nil
}

func (s *Store) ListActive(ctx context.Context) ([]store.TournamentRecord, error) {
	codes, err := s.client.ZRange(ctx, activeKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.TournamentRecord, 0, len(codes))
	for _, code := range codes {
		rec, err := s.GetTournament(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Close() error { return s.client.Close() }

func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (T, error) {
	var v T
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, store.ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}
