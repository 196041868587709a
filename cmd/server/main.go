package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/pong-backend/internal/config"
	"github.com/DoyleJ11/pong-backend/internal/httpapi"
	"github.com/DoyleJ11/pong-backend/internal/hub"
	"github.com/DoyleJ11/pong-backend/internal/logging"
	"github.com/DoyleJ11/pong-backend/internal/pong"
	"github.com/DoyleJ11/pong-backend/internal/room"
	"github.com/DoyleJ11/pong-backend/internal/store"
	"github.com/DoyleJ11/pong-backend/internal/store/memstore"
	"github.com/DoyleJ11/pong-backend/internal/store/pgstore"
	"github.com/DoyleJ11/pong-backend/internal/store/redisstore"
	"github.com/DoyleJ11/pong-backend/internal/store/sqlitestore"
	"github.com/DoyleJ11/pong-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("snapshot store ready", zap.String("driver", cfg.StoreDriver))
	rec := store.NewRecorder(st, cfg.StoreTimeoutDuration(), log)

	h := hub.NewHub(ctx, hub.Options{
		Room: room.Config{
			TickRate:     cfg.TickRate,
			RejoinWindow: cfg.RejoinWindowDuration(),
			CleanupDelay: cfg.CleanupDelayDuration(),
			Sim:          pong.Config{MaxScore: cfg.MaxScore},
		},
		Recorder: rec,
		Log:      log,
	})
	defer func() {
		h.Shutdown()
		rec.Close()
		err = multierr.Append(err, st.Close())
	}()

	if err := restore(ctx, h, st, cfg.StoreTimeoutDuration(), log); err != nil {
		log.Warn("tournament restore skipped", zap.Error(err))
	}

	wsOpts := ws.Options{
		OriginPatterns: cfg.OriginPatterns,
		PingInterval:   cfg.PingIntervalDuration(),
		Log:            log,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, st, wsOpts, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.SnapshotStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return sqlitestore.Open(cfg.SQLitePath)
	case config.DriverPostgres:
		return pgstore.Open(cfg.DatabaseURL)
	case config.DriverRedis:
		return redisstore.Open(ctx, cfg.RedisAddr)
	default:
		return memstore.New(), nil
	}
}

func restore(ctx context.Context, h *hub.Hub, st store.SnapshotStore, timeout time.Duration, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	recs, err := st.ListActive(ctx)
	if err != nil {
		return err
	}
	n, err := h.Restore(recs)
	if err != nil {
		return err
	}
	log.Info("restored tournaments", zap.Int("count", n), zap.Int("found", len(recs)))
	return nil
}
