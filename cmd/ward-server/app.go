package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/donka/ward/internal/config"
	"github.com/donka/ward/internal/domain/dashboard"
	"github.com/donka/ward/internal/domain/finance"
	"github.com/donka/ward/internal/domain/patient"
	"github.com/donka/ward/internal/domain/stock"
	"github.com/donka/ward/internal/platform/db"
	"github.com/donka/ward/internal/platform/events"
	"github.com/donka/ward/internal/platform/export"
	"github.com/donka/ward/internal/platform/telemetry"
	"github.com/donka/ward/internal/platform/websocket"
)

const eventStreamMaxLen = 10000

// app holds every long-lived dependency built from the configuration.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	collector *telemetry.Collector
	hub       *websocket.Hub
	publisher events.Publisher

	patients  *patient.Service
	ledger    *finance.Service
	stock     *stock.Service
	dashboard *dashboard.Service
	ward      *export.Ward
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newApp wires the registries on the configured backend. Close must be
// called to release the pool and the Redis client.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, collector: telemetry.NewCollector(), hub: websocket.NewHub(logger)}

	pubs := []events.Publisher{events.NewLogPublisher(logger), a.collector, a.hub}
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, domain events stay in the log")
		} else {
			a.redis = client
			pubs = append(pubs, events.NewRedisStreamPublisher(client, cfg.EventStream, eventStreamMaxLen))
			logger.Info().Str("stream", cfg.EventStream).Msg("publishing domain events to redis")
		}
	}
	a.publisher = events.BestEffort(events.Multi(pubs...), logger)

	var (
		patientRepo patient.Repository
		ledgerRepo  finance.Repository
		stockRepo   stock.Repository
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		patientRepo = patient.NewRepoPG(pool)
		ledgerRepo = finance.NewRepoPG(pool)
		stockRepo = stock.NewRepoPG(pool)
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
	default:
		patientRepo = patient.NewMemoryRepo()
		ledgerRepo = finance.NewMemoryRepo()
		stockRepo = stock.NewMemoryRepo()
	}

	a.patients = patient.NewService(patientRepo, a.publisher)
	a.ledger = finance.NewService(ledgerRepo, a.publisher)
	a.stock = stock.NewService(stockRepo, a.publisher)
	a.dashboard = dashboard.NewService(a.patients, a.ledger, a.stock, a.collector)
	a.ward = &export.Ward{Patients: a.patients, Ledger: a.ledger, Stock: a.stock}
	return a, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// snapshotting reports whether the memory tables are persisted to SNAPSHOT_DIR.
func (a *app) snapshotting() bool {
	return a.cfg.StoreBackend == config.StoreMemory && a.cfg.SnapshotDir != ""
}

// loadSnapshot restores the memory tables from SNAPSHOT_DIR when present.
func (a *app) loadSnapshot(ctx context.Context) error {
	if !a.snapshotting() {
		return nil
	}
	found, err := a.ward.LoadDir(ctx, a.cfg.SnapshotDir)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if found {
		a.logger.Info().Str("dir", a.cfg.SnapshotDir).Msg("ward restored from snapshot")
	}
	return nil
}

func (a *app) saveSnapshot(ctx context.Context) error {
	if !a.snapshotting() {
		return nil
	}
	if err := a.ward.SaveDir(ctx, a.cfg.SnapshotDir); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	a.logger.Info().Str("dir", a.cfg.SnapshotDir).Msg("ward snapshot written")
	return nil
}

// refreshGauges recomputes the dashboard every interval so the Prometheus
// gauges follow the ward between requests.
func (a *app) refreshGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.dashboard.Summary(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("dashboard refresh failed")
		}
		if a.pool != nil {
			a.collector.SetDBConnections(db.PoolUsageOf(a.pool).Total)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// resolveSessionSecret returns the configured secret, or a random one when
// none is set. generated is true in the latter case.
func resolveSessionSecret(configured string) (secret []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random session secret: %w", err)
	}
	return key, true, nil
}
