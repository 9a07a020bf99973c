// Package app wires the Frost server runtime: config, logging, persistence,
// the delivery pipeline, and the WebSocket gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"frost/cmd/identity"
	"frost/cmd/internal/bot"
	"frost/cmd/internal/broadcast"
	"frost/cmd/internal/exchange"
	"frost/cmd/internal/gateway"
	"frost/cmd/internal/rooms"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// stores bundles the persistence boundaries the services run on. All four
// share one backend: Postgres when FROST_DATABASE_URL is set, process memory
// otherwise.
type stores struct {
	users    identity.Store
	rooms    rooms.Store
	exchange exchange.Store
	ledger   broadcast.Store
}

// App is the Frost server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	runner *broadcast.Runner
	ws     *gateway.WSGateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, s, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	roomSvc, err := rooms.NewService(s.rooms,
		rooms.WithMaxParticipants(cfg.RoomMaxParticipants),
		rooms.WithCodeLength(cfg.InviteCodeLength),
	)
	if err != nil {
		return nil, err
	}

	exSvc, err := exchange.NewService(s.exchange, roomSvc, exchange.WithLogger(log))
	if err != nil {
		return nil, err
	}

	hub := gateway.NewHub(log)

	dispatcher, err := broadcast.NewDispatcher(hub,
		broadcast.WithDelay(cfg.BroadcastDelay),
		broadcast.WithProgressEvery(cfg.BroadcastProgressEvery),
		broadcast.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	runner := broadcast.NewRunner(cfg.BroadcastWorkers, log)

	b, err := bot.New(bot.Config{
		Users:      s.users,
		Rooms:      roomSvc,
		Exchange:   exSvc,
		Ledger:     s.ledger,
		Dispatcher: dispatcher,
		Runner:     runner,
		Sender:     hub,
		AdminIDs:   cfg.AdminIDs,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	ws := gateway.NewWSGateway(log, hub, b)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		runner:    runner,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws)

	handler := WithRequestLogging(WithSecurityHeaders(mux), a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"admins", len(a.cfg.AdminIDs),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Let in-flight deliveries drain before the stores go away.
	if err := a.runner.Close(shutdownCtx); err != nil {
		a.log.Error("runner.close.fail", "err", err)
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and the in-memory dev
// stores. The in-memory exchange store piggybacks on the room store so a draw
// and a concurrent join serialize the same way they do in Postgres.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		roomStore := rooms.NewInMemoryStore()
		return nopStore{}, nil, false, stores{
			users:    identity.NewInMemoryStore(),
			rooms:    roomStore,
			exchange: exchange.NewInMemoryStore(roomStore),
			ledger:   broadcast.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, stores{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model: the app owns the pool lifecycle; the stores never
	// close it.
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}
	roomStore, err := rooms.NewPostgresStore(pool, rooms.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}
	exStore, err := exchange.NewPostgresStore(pool, exchange.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}
	ledger, err := broadcast.NewPostgresStore(pool, broadcast.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, stores{}, err
	}

	return dbStore{pool: pool}, pool, true, stores{
		users:    users,
		rooms:    roomStore,
		exchange: exStore,
		ledger:   ledger,
	}, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
