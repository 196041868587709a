package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticket(conn string) Ticket {
	return Ticket{ConnID: conn, PlayerID: "p-" + conn, Name: conn}
}

func TestEnqueuePairsInArrivalOrder(t *testing.T) {
	q := NewQueue()
	var pairs []Pairing
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		p, err := q.Enqueue(ticket(c))
		require.NoError(t, err)
		if p != nil {
			pairs = append(pairs, *p)
		}
	}

	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].First.ConnID)
	assert.Equal(t, "b", pairs[0].Second.ConnID)
	assert.Equal(t, "c", pairs[1].First.ConnID)
	assert.Equal(t, "d", pairs[1].Second.ConnID)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Position("e"))
}

func TestEnqueueRejectsDuplicateConnection(t *testing.T) {
	q := NewQueue()
	_, err := q.Enqueue(ticket("a"))
	require.NoError(t, err)

	p, err := q.Enqueue(ticket("a"))
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Nil(t, p)
	assert.Equal(t, 1, q.Len())
}

func TestRemove(t *testing.T) {
	cases := []struct {
		name   string
		queued []string
		remove string
		want   bool
		left   int
	}{
		{name: "present", queued: []string{"a"}, remove: "a", want: true, left: 0},
		{name: "absent", queued: []string{"a"}, remove: "z", want: false, left: 1},
		{name: "empty", remove: "a", want: false, left: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQueue()
			for _, c := range tc.queued {
				_, _ = q.Enqueue(ticket(c))
			}
			assert.Equal(t, tc.want, q.Remove(tc.remove))
			assert.False(t, q.Remove(tc.remove))
			assert.Equal(t, tc.left, q.Len())
		})
	}
}

func TestRemovedTicketIsNeverPaired(t *testing.T) {
	q := NewQueue()
	_, _ = q.Enqueue(ticket("a"))
	q.Remove("a")
	p, err := q.Enqueue(ticket("b"))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.True(t, q.HasPlayer("p-b"))
	assert.False(t, q.HasPlayer("p-a"))
}
