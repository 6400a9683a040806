package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/zhouzirui/drafting/backend/internal/config"
	"github.com/zhouzirui/drafting/backend/internal/handler"
	"github.com/zhouzirui/drafting/backend/internal/metrics"
	"github.com/zhouzirui/drafting/backend/internal/middleware"
	"github.com/zhouzirui/drafting/backend/internal/service/account"
	"github.com/zhouzirui/drafting/backend/internal/service/auditfeed"
	"github.com/zhouzirui/drafting/backend/internal/service/generation"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

// appStore 同时满足各服务与路由的持久化需求
type appStore interface {
	generation.Repository
	account.Repository
	handler.Store
}

func runServe(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	hub := auditfeed.NewHub(auditfeed.DefaultBuffer, logger)
	defer hub.Close()

	repo, closeStore, err := openStore(ctx, cfg.Database, logger, store.WithAuditObserver(hub.Publish))
	if err != nil {
		return err
	}
	defer closeStore()

	collector := metrics.New()

	accounts := account.NewService(repo, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger)
	if cfg.Bootstrap.Enabled {
		created, err := accounts.BootstrapAdmin(ctx, account.Credentials{
			Username: cfg.Bootstrap.Username,
			Email:    cfg.Bootstrap.Email,
			Password: cfg.Bootstrap.Password,
		})
		if err != nil {
			return err
		}
		if !created {
			logger.Info("admin already present, bootstrap skipped")
		}
	}

	deps := handler.Deps{
		Accounts:       accounts,
		Store:          repo,
		Feed:           hub,
		Metrics:        collector,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	}

	client, err := newClient(ctx, cfg.AI, logger)
	if err != nil {
		logger.WithError(err).Warn("generation client unavailable, continuing without AI")
	}
	if client != nil {
		deps.Generation = generation.NewService(client, repo, logger, collector)
		deps.AIHealth = client
	} else {
		logger.WithField("provider", cfg.AI.Provider).Warn("AI 凭证未配置，生成接口将返回 503")
		deps.Generation = generation.NewService(nil, repo, logger, collector)
	}

	if cfg.RateLimit.Enabled {
		if err := attachRateLimits(ctx, cfg.RateLimit, &deps, logger); err != nil {
			return err
		}
	}

	startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger, opts ...store.Option) (appStore, func(), error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(opts...), func() {}, nil
	}

	db, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, db, cfg.Driver); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store.NewSQLStore(db, opts...), closeDB(db, logger), nil
}

func closeDB(db *sql.DB, logger logging.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("failed to close database")
		}
	}
}

func attachRateLimits(ctx context.Context, cfg config.RateLimitConfig, deps *handler.Deps, logger logging.Logger) error {
	counters, err := middleware.NewCounterStore(ctx, cfg.StorageURL)
	if err != nil {
		return err
	}

	defaults, err := middleware.ParseLimits(cfg.Default)
	if err != nil {
		return err
	}
	generationLimits, err := middleware.ParseLimits(cfg.Generation)
	if err != nil {
		return err
	}

	deps.DefaultLimit = middleware.NewRateLimiter("default", defaults, counters, logger)
	deps.GenerationLimit = middleware.NewRateLimiter("generation", generationLimits, counters, logger)
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger logging.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("drafting backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
