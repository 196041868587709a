// Package matchmaking pairs waiting players first come, first served.
package matchmaking

import (
	"errors"
	"time"
)

var ErrAlreadyQueued = errors.New("connection already queued")

// Ticket is one connection waiting for an opponent.
type Ticket struct {
	ConnID     string
	PlayerID   string
	Name       string
	EnqueuedAt time.Time
}

// Pairing is two tickets popped together. First is the older of the two.
type Pairing struct {
	First  Ticket
	Second Ticket
}

// Queue is not safe for concurrent use; it lives on the hub loop.
type Queue struct {
	waiting []Ticket
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends t and returns a pairing as soon as two tickets are waiting.
func (q *Queue) Enqueue(t Ticket) (*Pairing, error) {
	if q.Position(t.ConnID) > 0 {
		return nil, ErrAlreadyQueued
	}
	q.waiting = append(q.waiting, t)
	if len(q.waiting) < 2 {
		return nil, nil
	}
	p := &Pairing{First: q.waiting[0], Second: q.waiting[1]}
	q.waiting = append(q.waiting[:0:0], q.waiting[2:]...)
	return p, nil
}

func (q *Queue) Remove(connID string) bool {
	for i, t := range q.waiting {
		if t.ConnID == connID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.waiting) }

// Position is 1-based; 0 means not queued.
func (q *Queue) Position(connID string) int {
	for i, t := range q.waiting {
		if t.ConnID == connID {
			return i + 1
		}
	}
	return 0
}

// HasPlayer reports whether any waiting ticket belongs to playerID.
func (q *Queue) HasPlayer(playerID string) bool {
	for _, t := range q.waiting {
		if t.PlayerID == playerID {
			return true
		}
	}
	return false
}
