package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pong-backend/internal/hub"
)

const (
	writeTimeout        = 3 * time.Second
	maxFrameSize        = 4 << 10
	DefaultPingInterval = 20 * time.Second
)

type Options struct {
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
	// PingInterval paces the liveness pings. A pong must come back within
	// one interval or the socket is closed.
	PingInterval time.Duration
	Log          *zap.Logger
}

// Handler upgrades /ws?playerId=&name= to a websocket bound to the hub. A
// missing playerId gets a fresh one, which the welcome message reports.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")
	interval := opts.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		playerID := q.Get("playerId")
		if playerID == "" {
			playerID = uuid.NewString()
		}
		name := q.Get("name")
		if name == "" {
			name = "anonymous"
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxFrameSize)

		c, err := h.Connect(playerID, name)
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		defer h.Disconnect(c.ID)
		log := log.With(zap.String("conn", c.ID), zap.String("player", playerID))
		log.Debug("client connected")

		// Writer goroutine. A closed outbox means the hub dropped us.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			for frame := range c.Outbox {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					return
				}
			}
			conn.Close(websocket.StatusPolicyViolation, "too slow")
		}()

		go keepAlive(writeCtx, conn, interval, log)

		// Reader loop. Idle players stay connected as long as pings succeed.
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client closed")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}
			h.Deliver(c.ID, data)
		}
	}
}

// keepAlive pings until ctx ends. Pongs are only seen while the reader loop
// is reading. A peer that misses one is closed without a close handshake,
// which also ends the reader loop.
func keepAlive(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Debug("ping failed", zap.Error(err))
					conn.CloseNow()
				}
				return
			}
		}
	}
}
