// Package app wires configuration, storage and services into one container
// shared by the HTTP server and the operations CLI.
package app

import (
	"context"
	"database/sql"
	"net/http"

	"fulfillment-be/internal/api"
	"fulfillment-be/internal/broker"
	"fulfillment-be/internal/cache"
	"fulfillment-be/internal/catalog"
	"fulfillment-be/internal/config"
	"fulfillment-be/internal/db"
	"fulfillment-be/internal/fulfillment"
	"fulfillment-be/internal/inventory"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/middleware"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/outbox"
	"fulfillment-be/internal/scheduler"
	"fulfillment-be/internal/shipping"
	"fulfillment-be/internal/tracking"
	"fulfillment-be/internal/warehouse"

	"go.uber.org/zap"
)

const outboxBatch = 100

type App struct {
	Config *config.Config
	DB     *sql.DB

	Products   catalog.Repository
	Warehouses warehouse.Repository
	Ledger     inventory.Ledger
	Cache      cache.Cache
	OrderRepo  order.Repository
	Orders     order.Service
	Shipments  shipping.Service
	Purchases  *fulfillment.Orchestrator
	Relay      *outbox.Relay
	Limiter    *middleware.Limiter

	closers []func() error
}

// New connects to Postgres and builds every service. Redis and Kafka are
// optional: without them the in-process cache and log publisher are used.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	conn, err := db.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a := Build(ctx, cfg, conn)
	a.closers = append(a.closers, conn.Close)
	return a, nil
}

// Build wires services over an open connection.
func Build(ctx context.Context, cfg *config.Config, conn *sql.DB) *App {
	log := logger.L().With(zap.String("layer", "app"))

	a := &App{Config: cfg, DB: conn, Limiter: middleware.NewLimiter()}

	a.Products = catalog.NewRepository(conn)
	a.Warehouses = warehouse.NewRepository(conn)
	a.Ledger = inventory.NewPostgresLedger(conn, cfg.ReservationTTL)
	a.Cache = a.buildCache(ctx, log)

	a.OrderRepo = order.NewRepository(conn)
	a.Orders = order.NewService(a.OrderRepo, a.Products, a.Ledger, a.Cache, order.Options{
		MaxQuantity: cfg.MaxOrderQuantity,
		TotalTTL:    cfg.OrderTotalCacheTTL,
	})

	a.Shipments = shipping.NewService(
		shipping.NewRepository(conn),
		a.Warehouses,
		tracking.NewGenerator(nil),
		order.NewDeliveryHandler(a.OrderRepo),
	)
	a.Purchases = fulfillment.NewOrchestrator(a.Orders, a.Shipments)
	a.Relay = outbox.NewRelay(conn, a.buildPublisher(log), outboxBatch)

	return a
}

func (a *App) buildCache(ctx context.Context, log *zap.Logger) cache.Cache {
	if a.Config.RedisAddr == "" {
		log.Info("redis not configured, using in-process cache")
		return cache.NewMemory()
	}

	rc, err := cache.NewRedis(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	if err != nil {
		log.Warn("redis unavailable, using in-process cache", zap.String("addr", a.Config.RedisAddr), zap.Error(err))
		return cache.NewMemory()
	}
	a.closers = append(a.closers, rc.Close)
	return rc
}

func (a *App) buildPublisher(log *zap.Logger) outbox.Publisher {
	if len(a.Config.KafkaBrokers) == 0 {
		log.Info("kafka not configured, outbox events go to the log")
		return outbox.LogPublisher{}
	}

	p := broker.NewProducer(a.Config.KafkaBrokers, a.Config.KafkaTopic)
	a.closers = append(a.closers, p.Close)
	return p
}

// Bootstrap makes sure the default warehouse exists and is active.
func (a *App) Bootstrap(ctx context.Context) (*warehouse.Warehouse, error) {
	return a.Warehouses.GetOrCreateDefault(ctx)
}

func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	api.NewHandler(a.Orders, a.Shipments, a.Purchases, a.Products).Register(mux)

	return middleware.Chain(mux,
		logger.RequestIDMiddleware,
		logger.LoggingMiddleware,
		middleware.CORS(a.Config.CORSOrigin),
		middleware.Auth([]byte(a.Config.SecretKey), a.Config.InternalSecretKey),
		a.Limiter.Middleware,
	)
}

// Jobs lists the background work; the cache sweep only runs for the
// in-process cache since Redis expires keys itself.
func (a *App) Jobs() []scheduler.Job {
	jobs := []scheduler.Job{
		scheduler.ReaperJob(a.Config.ReaperSchedule, a.Ledger, 0),
		scheduler.RelayJob(a.Config.OutboxSchedule, a.Relay),
	}
	if m, ok := a.Cache.(*cache.Memory); ok && a.Config.CacheSweep != "" {
		jobs = append(jobs, scheduler.CacheSweepJob(a.Config.CacheSweep, m))
	}
	return jobs
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("close failed", zap.Error(err))
		}
	}
}
