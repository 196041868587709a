// Package protocol is the websocket wire format. Every frame is an envelope
// {"t": type, "p": payload}.
//
// Client -> Server
// join-queue: {}
// leave-queue: {}
// submit-input:
//   command: "up" | "down" | "stop"
// mark-ready:
//   code: string   // tournament code; omit for a queued match
//   ready: boolean // tournaments only, defaults to true
// forfeit: {}
// tournament-create:
//   name: string
//   alias: string
//   capacity: number // rounded up to a power of two, 2..64
// tournament-join:
//   code: string
//   alias: string
// tournament-leave / tournament-start:
//   code: string
// tournament-list: {}
//
// Server -> Client
// welcome: { playerId, connId }
// queue-status: { position }          // 0 once dequeued
// match-ready: { roomId, side, opponent, tournament?, bracketMatch? }
// match-started: { roomId }
// state-tick: { roomId, state }
// match-ended: { roomId, winnerId, loserId, score, forfeit }
// match-cancelled: { roomId }
// match-resumed: { roomId }
// player-disconnected: { roomId, playerId, deadline }
// tournament-update: { state }
// tournament-match-ready: { code, matchId, roomId, opponent }
// tournament-finished: { code, champion }
// tournament-list: { tournaments }
// error: { code, message }
package protocol
