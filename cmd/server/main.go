package main

import (
	"context"
	"database/sql"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/restaurant-table-reservation/internal/cache"
	"github.com/iliyamo/restaurant-table-reservation/internal/clock"
	"github.com/iliyamo/restaurant-table-reservation/internal/config"
	"github.com/iliyamo/restaurant-table-reservation/internal/database"
	"github.com/iliyamo/restaurant-table-reservation/internal/handler"
	"github.com/iliyamo/restaurant-table-reservation/internal/logger"
	"github.com/iliyamo/restaurant-table-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-table-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-table-reservation/internal/notification"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
	"github.com/iliyamo/restaurant-table-reservation/internal/repository"
	"github.com/iliyamo/restaurant-table-reservation/internal/router"
	"github.com/iliyamo/restaurant-table-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(logger.Config{
		ServiceName: "table-reservation",
		Environment: cfg.Env,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable; using mysql table locks and in-process cache and rate limiting")
	} else {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt, err := metrics.New(reg)
	if err != nil {
		return err
	}

	cacheCfg := config.LoadCacheConfig()
	store := cache.NewStore(rdb, cacheCfg.TTL, cacheCfg.CleanupInterval)
	var restaurantCache service.RestaurantCache
	if cacheCfg.Enabled {
		restaurantCache = cache.NewRestaurantCache(store, cacheCfg.Prefix, cacheCfg.TTL, log)
	}

	var sender notification.Sender = notification.LogSender{Log: log}
	if cfg.RabbitURL != "" {
		publisher := queue.NewPublisher(cfg.RabbitURL, cfg.EventsExchange, log)
		defer publisher.Close()
		sender = publisher
	}
	dispatcher := notification.NewDispatcher(cfg.NotifyWorkers, cfg.NotifyBuffer, sender, mt, log)

	clk := clock.NewSystem()
	dir := service.NewDirectory(repository.NewRestaurantRepo(db), restaurantCache, clk, log)
	locks := service.NewLockManager(dir, lockStore(cfg, db, rdb, log), dispatcher, clk, log,
		service.WithLockTTL(cfg.LockTTL),
		service.WithLockMetrics(mt),
	)
	ledger := service.NewLedger(repository.NewReservationRepo(db), clk, log)
	booking := service.NewBookingService(dir, locks, ledger, dispatcher, clk, log, service.WithBookingMetrics(mt))

	checks := map[string]handler.Check{"mysql": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	e := router.New(router.Handlers{
		Restaurants:  handler.NewRestaurantHandler(dir),
		Reservations: handler.NewReservationHandler(booking),
		Locks:        handler.NewTableLockHandler(locks),
		Ready:        handler.Ready(checks),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, router.Options{
		JWTSecret:     cfg.JWTSecret,
		RateLimit:     middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		ResponseCache: middleware.ResponseCache(cacheCfg, store),
		Log:           log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return locks.RunSweeper(gctx, cfg.LockSweepInterval) })
	if cfg.EventAudit {
		consumer := queue.AuditConsumer{URL: cfg.RabbitURL, Exchange: cfg.EventsExchange, Log: log}
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.Duration("lock_ttl", locks.TTL()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// lockStore keeps table locks in Redis when configured and reachable and in
// MySQL otherwise.
func lockStore(cfg config.Config, db *sql.DB, rdb *redis.Client, log *zap.Logger) service.TableLockStore {
	if strings.EqualFold(cfg.LockBackend, "redis") && rdb != nil {
		log.Info("table locks stored in redis")
		return repository.NewRedisTableLockStore(rdb)
	}
	log.Info("table locks stored in mysql")
	return repository.NewTableLockRepo(db)
}
