package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Recorder writes snapshots in the background, in submission order. Callers
// never wait on the backend; if the backlog fills, writes are dropped and
// logged. A nil *Recorder discards everything.
type Recorder struct {
	store   SnapshotStore
	timeout time.Duration
	log     *zap.Logger
	jobs    chan job
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

func NewRecorder(s SnapshotStore, timeout time.Duration, log *zap.Logger) *Recorder {
	r := &Recorder{
		store:   s,
		timeout: timeout,
		log:     log.Named("recorder"),
		jobs:    make(chan job, 1024),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := j.run(ctx); err != nil {
			r.log.Warn("snapshot write failed", zap.String("op", j.name), zap.Error(err))
		}
		cancel()
	}
}

func (r *Recorder) submit(name string, run func(ctx context.Context) error) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job{name: name, run: run}:
	default:
		r.log.Warn("snapshot backlog full, dropping write", zap.String("op", name))
	}
}

func (r *Recorder) SaveMatch(rec MatchRecord) {
	r.submit("save_match", func(ctx context.Context) error { return r.store.SaveMatch(ctx, rec) })
}

func (r *Recorder) UpdateMatch(id string, u MatchUpdate) {
	r.submit("update_match", func(ctx context.Context) error { return r.store.UpdateMatch(ctx, id, u) })
}

func (r *Recorder) SaveTournament(rec TournamentRecord) {
	r.submit("save_tournament", func(ctx context.Context) error { return r.store.SaveTournament(ctx, rec) })
}

func (r *Recorder) UpdateTournament(code string, rec TournamentRecord) {
	r.submit("update_tournament", func(ctx context.Context) error { return r.store.UpdateTournament(ctx, code, rec) })
}

// Close flushes queued writes and stops the worker.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.jobs)
		r.mu.Unlock()
		<-r.done
	})
}
