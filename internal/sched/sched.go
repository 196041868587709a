// Package sched is the clock every game service runs on. Callbacks scheduled
// through a Scheduler run one at a time on the owner's loop, so services never
// lock their own state.
package sched

import (
	"sync/atomic"
	"time"
)

type Timer interface {
	// Stop prevents the callback from running again. It reports whether the
	// timer was still active.
	Stop() bool
}

type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Poster hands a callback to the loop goroutine. It returns false once the
// loop has shut down.
type Poster func(fn func()) bool

// Realtime schedules on the wall clock and runs callbacks through post.
type Realtime struct {
	post Poster
}

func NewRealtime(post Poster) *Realtime {
	return &Realtime{post: post}
}

func (r *Realtime) Now() time.Time { return time.Now() }

type realTimer struct {
	stopped atomic.Bool
	stop    func()
}

func (t *realTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.stop()
	return true
}

func (r *Realtime) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	tm := time.AfterFunc(d, func() {
		r.post(func() {
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	t.stop = func() { tm.Stop() }
	return t
}

func (r *Realtime) Every(d time.Duration, fn func()) Timer {
	t := &realTimer{}
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	t.stop = func() {
		ticker.Stop()
		close(done)
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ok := r.post(func() {
					// A fire queued before Stop must not run.
					if t.stopped.Load() {
						return
					}
					fn()
				})
				if !ok {
					return
				}
			}
		}
	}()
	return t
}
