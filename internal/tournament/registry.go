package tournament

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/store"
)

// Share codes skip look-alike characters (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[num.Int64()]
	}
	return string(code), nil
}

// Registry holds every live tournament by share code. A player belongs to at
// most one unfinished tournament at a time.
type Registry struct {
	deps        Deps
	log         *zap.Logger
	tournaments map[string]*Engine
	byPlayer    map[string]string
	newCode     func() (string, error)
	// seq orders tournaments created within the same clock instant.
	seq uint64
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:        deps,
		log:         deps.Log.Named("tournaments"),
		tournaments: make(map[string]*Engine),
		byPlayer:    make(map[string]string),
		newCode:     GenerateCode,
	}
}

func (r *Registry) uniqueCode() (string, error) {
	for {
		c, err := r.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.tournaments[c]; !taken {
			return c, nil
		}
		r.log.Debug("collision on code, regenerating")
	}
}

// Create opens a tournament hosted by playerID, who joins it as alias.
func (r *Registry) Create(name, alias string, capacity int, playerID, connID string) (*Engine, error) {
	if r.ForPlayer(playerID) != nil {
		return nil, ErrInTournament
	}
	code, err := r.uniqueCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	e, err := New(code, name, capacity, playerID, r.deps)
	if err != nil {
		return nil, err
	}
	if err := e.Join(alias, playerID, connID); err != nil {
		return nil, err
	}
	r.add(code, e)
	r.byPlayer[playerID] = code
	r.log.Info("tournament created", zap.String("code", code), zap.String("host", playerID))
	return e, nil
}

func (r *Registry) Get(code string) (*Engine, bool) {
	e, ok := r.tournaments[code]
	return e, ok
}

func (r *Registry) lookup(code string) (*Engine, error) {
	e, ok := r.tournaments[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return e, nil
}

func (r *Registry) Join(code, alias, playerID, connID string) (*Engine, error) {
	e, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	if other := r.ForPlayer(playerID); other != nil && other != e {
		return nil, ErrInTournament
	}
	if err := e.Join(alias, playerID, connID); err != nil {
		return nil, err
	}
	r.byPlayer[playerID] = code
	return e, nil
}

func (r *Registry) Leave(code, playerID string) error {
	e, err := r.lookup(code)
	if err != nil {
		return err
	}
	registering := e.Status() == StatusRegistering
	if err := e.Leave(playerID); err != nil {
		return err
	}
	if registering {
		delete(r.byPlayer, playerID)
		if e.Empty() {
			delete(r.tournaments, code)
			r.log.Info("tournament abandoned", zap.String("code", code))
		}
	}
	return nil
}

func (r *Registry) Start(code, playerID string) error {
	e, err := r.lookup(code)
	if err != nil {
		return err
	}
	return e.Start(playerID)
}

func (r *Registry) SetReady(code, playerID string, ready bool) error {
	e, err := r.lookup(code)
	if err != nil {
		return err
	}
	return e.SetReady(playerID, ready)
}

// ForPlayer returns the unfinished tournament playerID is registered in.
func (r *Registry) ForPlayer(playerID string) *Engine {
	e := r.tournaments[r.byPlayer[playerID]]
	if e == nil || e.Status() == StatusCompleted || !e.Has(playerID) {
		return nil
	}
	return e
}

// HandleDisconnect marks playerID away if connID is still their live
// connection; a stale socket closing after a reconnect is ignored.
func (r *Registry) HandleDisconnect(playerID, connID string) {
	if e := r.ForPlayer(playerID); e != nil && e.ConnID(playerID) == connID {
		e.HandleDisconnect(playerID)
	}
}

func (r *Registry) Reconnect(playerID, connID string) {
	if e := r.ForPlayer(playerID); e != nil {
		e.Reconnect(playerID, connID)
	}
}

func (r *Registry) add(code string, e *Engine) {
	r.seq++
	e.seq = r.seq
	r.tournaments[code] = e
}

// List returns every tournament, newest first.
func (r *Registry) List() []Summary {
	engines := make([]*Engine, 0, len(r.tournaments))
	for _, e := range r.tournaments {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool {
		a, b := engines[i], engines[j]
		if !a.created.Equal(b.created) {
			return a.created.After(b.created)
		}
		return a.seq > b.seq
	})
	out := make([]Summary, len(engines))
	for i, e := range engines {
		out[i] = e.Summary()
	}
	return out
}

// Restore loads unfinished tournaments saved by a previous process. Records
// that fail to decode are logged and skipped.
func (r *Registry) Restore(recs []store.TournamentRecord) int {
	n := 0
	for _, rec := range recs {
		e, err := Restore(rec, r.deps)
		if err != nil {
			r.log.Warn("skipping unrestorable tournament", zap.String("code", rec.Code), zap.Error(err))
			continue
		}
		if _, dup := r.tournaments[rec.Code]; dup {
			r.log.Warn("duplicate tournament code on restore", zap.String("code", rec.Code))
			continue
		}
		r.add(rec.Code, e)
		for _, p := range e.participants {
			r.byPlayer[p.PlayerID] = rec.Code
		}
		n++
	}
	return n
}
