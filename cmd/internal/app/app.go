// Package app wires the pastr server runtime: config, logging, storage,
// hashing, activation delivery and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pastr/cmd/identity"
	"pastr/cmd/internal/api"
	"pastr/cmd/internal/mail"
	"pastr/cmd/internal/metrics"
	"pastr/cmd/internal/workpool"
	"pastr/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the pastr server runtime: it owns the HTTP server and the resources
// behind it.
type App struct {
	cfg Config
	log Logger

	dbPool     *pgxpool.Pool
	metrics    *metrics.Metrics
	dispatcher *mail.Dispatcher
	accounts   *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	pepper, err := LoadPepper(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(cfg.Password.Params)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	pool := workpool.New(cfg.HashWorkers)
	m.RegisterPoolGauges(pool.InFlight, pool.Waiting)

	store, dbPool, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	mgr, err := identity.NewManager(store, hasher, pepper,
		identity.WithPool(pool),
		identity.WithLogger(log),
		identity.WithObserver(m),
	)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	sender, err := newSender(cfg, log)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}
	dispatcher := mail.NewDispatcher(mail.DispatcherConfig{
		Workers:   cfg.Delivery.Workers,
		QueueSize: cfg.Delivery.QueueSize,
		Timeout:   cfg.Delivery.Timeout,
	}, sender, log, m)

	accounts, err := api.NewHandler(log, mgr, api.Config{
		BaseURL:           cfg.BaseURL,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		OpTimeout:         cfg.OpTimeout,
		RequireActivation: cfg.RequireActivation,
		Policy:            cfg.Password.Policy,
	}, api.WithNotifier(dispatcher))
	if err != nil {
		_ = dispatcher.Close(ctx)
		closePool(dbPool)
		return nil, err
	}

	log.Info("app.wired",
		"env", cfg.Env,
		"db_enabled", dbPool != nil,
		"hash_workers", pool.Size(),
		"smtp", cfg.Mail.Host != "",
	)

	return &App{
		cfg:        cfg,
		log:        log,
		dbPool:     dbPool,
		metrics:    m,
		dispatcher: dispatcher,
		accounts:   accounts,
	}, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.metrics, a.accounts)
	return buildHandler(mux, a.log, a.metrics)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "base_url", a.cfg.BaseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	// Drain queued activation mail before the pool goes away.
	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error("app.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close releases the dispatcher and the database pool.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.dispatcher != nil {
		err = a.dispatcher.Close(ctx)
	}
	closePool(a.dbPool)
	return err
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

func closePool(p *pgxpool.Pool) {
	if p != nil {
		p.Close()
	}
}

// newStore decides between Postgres-backed persistence and the in-memory dev store.
// The returned pool is nil in memory mode.
func newStore(ctx context.Context, cfg Config, log Logger) (identity.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		if cfg.Env == EnvProd {
			return nil, nil, errors.New("app: prod requires a database")
		}
		log.Warn("db.disabled.inmemory_store")
		return identity.NewInMemoryStore(), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DBMigrate {
		if err := Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore never closes it
	st, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("db.enabled.postgres_store")
	return st, pool, nil
}

func newSender(cfg Config, log Logger) (mail.Sender, error) {
	if cfg.Mail.Host == "" {
		log.Warn("mail.disabled.log_sender")
		return mail.LogSender{Log: log}, nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		Username:   cfg.Mail.Username,
		Password:   cfg.Mail.Password,
		From:       cfg.Mail.From,
		SenderName: cfg.Mail.SenderName,
		Timeout:    cfg.Mail.Timeout,
	})
}
