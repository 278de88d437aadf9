package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/donka/ward/internal/config"
	"github.com/donka/ward/internal/domain/dashboard"
	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
	"github.com/donka/ward/internal/platform/auth"
	"github.com/donka/ward/internal/platform/db"
	"github.com/donka/ward/internal/platform/export"
	"github.com/donka/ward/internal/platform/middleware"
	"github.com/donka/ward/internal/platform/websocket"
	"github.com/donka/ward/migrations"
)

const (
	version          = "0.1.0"
	gaugeInterval    = 30 * time.Second
	shutdownDeadline = 10 * time.Second
)

// newServer builds the echo instance with the full middleware chain and every
// route mounted.
func newServer(a *app) (*echo.Echo, error) {
	cfg := a.cfg
	logger := a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(a.collector.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Auth middleware
	var authHandler *auth.Handler
	if cfg.AuthEnabled() {
		gate, sessions, err := buildSessions(a)
		if err != nil {
			return nil, err
		}
		e.Use(sessions.Middleware(auth.AuthSkipper))
		authHandler = auth.NewHandler(gate, sessions, logger)
	} else {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"backend": cfg.StoreBackend,
		})
	})
	e.GET("/metrics", a.collector.Handler())
	if a.pool != nil {
		health := db.NewHealthChecker(a.pool, db.NewMigrator(a.pool, migrations.Files, cfg.DBSchema), cfg.DBSchema)
		e.GET("/health/db", health.Handler)
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	if authHandler != nil {
		authHandler.RegisterRoutes(apiV1, middleware.RateLimit(middleware.LoginRateLimitConfig()))
	}

	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	finance.NewHandler(a.ledger).RegisterRoutes(apiV1)
	stock.NewHandler(a.stock).RegisterRoutes(apiV1)
	dashboard.NewHandler(a.dashboard).RegisterRoutes(apiV1)
	export.NewHandler(a.ward).RegisterRoutes(apiV1)
	websocket.NewHandler(a.hub, cfg.CORSOrigins, logger).RegisterRoutes(apiV1)

	return e, nil
}

// buildSessions turns the configured passphrase into a bcrypt gate and opens
// the session manager.
func buildSessions(a *app) (*auth.Gate, *auth.Manager, error) {
	cfg := a.cfg
	hash := cfg.PassphraseHash
	if hash == "" {
		h, err := auth.HashPassphrase(cfg.Passphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("hash WARD_PASSPHRASE: %w", err)
		}
		hash = h
	}
	gate, err := auth.NewGate(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("WARD_PASSPHRASE_HASH: %w", err)
	}

	secret, generated, err := resolveSessionSecret(cfg.SessionSecret)
	if err != nil {
		return nil, nil, err
	}
	if generated {
		a.logger.Warn().Msg("generated an ephemeral session secret, sessions end with the process")
	}
	sessions, err := auth.NewManager(auth.SessionConfig{Secret: secret, TTL: cfg.SessionTTL}, auth.NewRevocationList())
	if err != nil {
		return nil, nil, err
	}
	return gate, sessions, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger(nil)
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start ward")
	}
	defer a.Close()

	if err := a.loadSnapshot(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore ward")
	}

	e, err := newServer(a)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go a.refreshGauges(bgCtx, gaugeInterval)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := a.saveSnapshot(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ward snapshot lost")
	}
	logger.Info().Msg("server stopped")
	return nil
}
