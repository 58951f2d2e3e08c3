// Package app wires the canvas server together: storage backend, state, hub, placement
// pipeline, ledger and HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/config"
	"github.com/DoyleJ11/color-war-backend/internal/httpapi"
	"github.com/DoyleJ11/color-war-backend/internal/hub"
	"github.com/DoyleJ11/color-war-backend/internal/kv"
	"github.com/DoyleJ11/color-war-backend/internal/ledger"
	"github.com/DoyleJ11/color-war-backend/internal/state"
	"github.com/DoyleJ11/color-war-backend/internal/ws"
)

const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
	ledgerBuffer       = 1024
)

type App struct {
	cfg config.Config
	log *zap.Logger

	kv       kv.Store
	store    *state.Store
	hub      *hub.Hub
	placer   *hub.Placer
	recorder ledger.Recorder
	handler  http.Handler
}

// New opens the store and fails if it cannot be reached; nothing listens until Run.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (a *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	palette, err := canvas.NewPalette(cfg.Canvas.Palette)
	if err != nil {
		return nil, err
	}

	backend, err := openKV(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", errors.Join(canvas.ErrStoreUnavailable, err))
	}
	a = &App{cfg: cfg, log: log, kv: backend, recorder: ledger.Nop{}}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.store, err = state.New(backend, state.Options{
		GridSize:    cfg.Canvas.GridSize,
		Cooldown:    cfg.Canvas.Cooldown,
		KeyPrefix:   cfg.KeyPrefix,
		ReadTimeout: cfg.SnapshotTimeout,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := a.store.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	// create the grid now rather than on the first join
	if _, err := a.store.Grid.Snapshot(pingCtx); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	history, err := a.openLedger()
	if err != nil {
		return nil, err
	}

	a.hub = hub.New(context.Background(), log)
	a.placer = hub.NewPlacer(a.store, a.hub, hub.PlacerOptions{
		Palette:  palette,
		Policy:   cfg.ActorPolicy,
		Recorder: a.recorder,
		Logger:   log,
	})
	a.handler = httpapi.SetupRoutes(httpapi.Deps{
		Store:   a.store,
		Hub:     a.hub,
		Placer:  a.placer,
		Palette: palette,
		History: history,
		WS: ws.Options{
			SnapshotTimeout: cfg.SnapshotTimeout,
			MsgRate:         rate.Limit(cfg.MsgRate),
			MsgBurst:        cfg.MsgBurst,
			OriginPatterns:  cfg.AllowedOrigins,
		},
		Log: log,
	})

	log.Info("canvas ready",
		zap.String("backend", cfg.Backend),
		zap.Int("grid_size", cfg.Canvas.GridSize),
		zap.Duration("cooldown", cfg.Canvas.Cooldown),
		zap.Int("palette", palette.Len()),
	)
	return a, nil
}

func openKV(cfg config.Config) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return kv.NewRedis(kv.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}), nil
	case config.BackendSQLite:
		return kv.OpenSQLite(cfg.SQLitePath)
	case config.BackendMemory:
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// openLedger sets a.recorder from JOURNAL_DIR and DATABASE_URL. The Postgres ledger also
// serves the recent-placements endpoint.
func (a *App) openLedger() (ledger.History, error) {
	var recs ledger.Multi
	var history ledger.History
	if a.cfg.JournalDir != "" {
		recs = append(recs, ledger.NewJournal(a.cfg.JournalDir, "placements"))
	}
	if a.cfg.DatabaseURL != "" {
		pg, err := ledger.OpenPostgres(a.cfg.DatabaseURL)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("app: ledger: %w", err), recs.Close())
		}
		recs = append(recs, pg)
		history = pg
	}
	if len(recs) > 0 {
		a.recorder = ledger.NewAsync(recs, ledgerBuffer, a.log)
	}
	return history, nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", a.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases everything New opened. It is safe to call after Run returns.
func (a *App) Close() error {
	if a.hub != nil {
		a.hub.Close()
	}
	var err error
	err = multierr.Append(err, a.recorder.Close())
	err = multierr.Append(err, a.kv.Close())
	return err
}
