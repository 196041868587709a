package hub

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/matchmaking"
	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/protocol"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/tournament"
)

// Error codes sent in protocol.Error.
const (
	CodeBadMessage   = "bad-message"
	CodeUnknownType  = "unknown-type"
	CodeInMatch      = "in-match"
	CodeQueued       = "already-queued"
	CodeNoMatch      = "no-match"
	CodeMatch        = "match"
	CodeTournament   = "tournament"
	CodeNoTournament = "no-tournament"
)

var ErrInTournamentMatch = errors.New("player has a tournament match in progress")

func (h *Hub) handleFrame(connID string, frame []byte) {
	c, ok := h.clients[connID]
	if !ok {
		return
	}
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		h.sendError(connID, CodeBadMessage, err)
		return
	}
	if err := h.route(connID, c, env); err != nil {
		h.log.Debug("client request rejected",
			zap.String("conn", connID),
			zap.String("type", env.T),
			zap.Error(err))
	}
}

func (h *Hub) route(connID string, c *client, env protocol.Envelope) error {
	switch env.T {
	case protocol.MsgJoinQueue:
		return h.joinQueue(connID, c)

	case protocol.MsgLeaveQueue:
		if h.queue.Remove(connID) {
			h.Send(connID, protocol.MsgQueueStatus, protocol.QueueStatus{Position: 0})
			h.broadcastQueuePositions()
		}
		return nil

	case protocol.MsgSubmitInput:
		in, err := protocol.DecodePayload[protocol.SubmitInput](env)
		if err != nil {
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		cmd, ok := pong.ParseCommand(in.Command)
		if !ok {
			err := fmt.Errorf("%w: %q", pong.ErrUnknownCommand, in.Command)
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		// Input outside a live rally gets no reply; the rejection is only
		// logged by handleFrame.
		return h.rooms.ApplyInput(c.playerID, cmd)

	case protocol.MsgMarkReady:
		var mr protocol.MarkReady
		if len(env.P) > 0 {
			var err error
			if mr, err = protocol.DecodePayload[protocol.MarkReady](env); err != nil {
				h.sendError(connID, CodeBadMessage, err)
				return err
			}
		}
		return h.markReady(connID, c, mr)

	case protocol.MsgForfeit:
		if err := h.rooms.Forfeit(c.playerID); err != nil {
			h.sendError(connID, CodeNoMatch, err)
			return err
		}
		return nil

	case protocol.MsgTournamentCreate:
		in, err := protocol.DecodePayload[protocol.TournamentCreate](env)
		if err != nil {
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		_, err = h.tournaments.Create(in.Name, in.Alias, in.Capacity, c.playerID, connID)
		return h.tournamentErr(connID, err)

	case protocol.MsgTournamentJoin:
		in, err := protocol.DecodePayload[protocol.TournamentJoin](env)
		if err != nil {
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		_, err = h.tournaments.Join(in.Code, in.Alias, c.playerID, connID)
		return h.tournamentErr(connID, err)

	case protocol.MsgTournamentLeave:
		ref, err := protocol.DecodePayload[protocol.TournamentRef](env)
		if err != nil {
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		return h.tournamentErr(connID, h.tournaments.Leave(ref.Code, c.playerID))

	case protocol.MsgTournamentStart:
		ref, err := protocol.DecodePayload[protocol.TournamentRef](env)
		if err != nil {
			h.sendError(connID, CodeBadMessage, err)
			return err
		}
		return h.tournamentErr(connID, h.tournaments.Start(ref.Code, c.playerID))

	case protocol.MsgTournamentList:
		h.Send(connID, protocol.MsgTournamentList, protocol.TournamentList{Tournaments: h.tournaments.List()})
		return nil

	default:
		err := errors.New("unknown message type " + env.T)
		h.sendError(connID, CodeUnknownType, err)
		return err
	}
}

func (h *Hub) joinQueue(connID string, c *client) error {
	if h.rooms.InRoom(c.playerID) {
		h.sendError(connID, CodeInMatch, room.ErrPlayerBusy)
		return room.ErrPlayerBusy
	}
	if e := h.tournaments.ForPlayer(c.playerID); e != nil && e.Contending(c.playerID) {
		h.sendError(connID, CodeInMatch, ErrInTournamentMatch)
		return ErrInTournamentMatch
	}
	if h.queue.HasPlayer(c.playerID) {
		h.sendError(connID, CodeQueued, matchmaking.ErrAlreadyQueued)
		return matchmaking.ErrAlreadyQueued
	}
	pair, err := h.queue.Enqueue(matchmaking.Ticket{
		ConnID:     connID,
		PlayerID:   c.playerID,
		Name:       c.name,
		EnqueuedAt: h.now(),
	})
	if err != nil {
		h.sendError(connID, CodeQueued, err)
		return err
	}
	if pair == nil {
		h.Send(connID, protocol.MsgQueueStatus, protocol.QueueStatus{Position: h.queue.Position(connID)})
		return nil
	}
	for _, t := range []matchmaking.Ticket{pair.First, pair.Second} {
		h.Send(t.ConnID, protocol.MsgQueueStatus, protocol.QueueStatus{Position: 0})
	}
	if _, err := h.rooms.CreateRoom(*pair, room.Options{Hooks: h.resumeBrackets(*pair)}); err != nil {
		h.log.Warn("pairing discarded", zap.Error(err))
		for _, t := range []matchmaking.Ticket{pair.First, pair.Second} {
			h.sendError(t.ConnID, CodeMatch, err)
		}
		return err
	}
	return nil
}

// resumeBrackets retries bracket dispatch for both seats once a casual match
// ends. A bracket match skipped because a player was busy here waits on it.
func (h *Hub) resumeBrackets(p matchmaking.Pairing) room.Hooks {
	retry := func(room.Result) {
		for _, id := range []string{p.First.PlayerID, p.Second.PlayerID} {
			if e := h.tournaments.ForPlayer(id); e != nil {
				e.Dispatch()
			}
		}
	}
	return room.Hooks{OnComplete: retry, OnCancel: retry}
}

// markReady routes to the tournament when a share code is given, otherwise
// to the player's live room.
func (h *Hub) markReady(connID string, c *client, mr protocol.MarkReady) error {
	if mr.Code != "" {
		ready := true
		if mr.Ready != nil {
			ready = *mr.Ready
		}
		return h.tournamentErr(connID, h.tournaments.SetReady(mr.Code, c.playerID, ready))
	}
	if err := h.rooms.SetReady(c.playerID); err != nil {
		h.sendError(connID, CodeNoMatch, err)
		return err
	}
	return nil
}

func (h *Hub) tournamentErr(connID string, err error) error {
	if err == nil {
		return nil
	}
	code := CodeTournament
	if errors.Is(err, tournament.ErrNotFound) {
		code = CodeNoTournament
	}
	h.sendError(connID, code, err)
	return err
}
