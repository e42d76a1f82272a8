package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/database"
	"github.com/iliyamo/slot-booking/internal/handler"
	"github.com/iliyamo/slot-booking/internal/logger"
	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/queue"
	"github.com/iliyamo/slot-booking/internal/repository"
	"github.com/iliyamo/slot-booking/internal/router"
	"github.com/iliyamo/slot-booking/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "slot-booking",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := connectDatabase(ctx, cfg, log)
	defer db.Close()

	rdb := connectRedis(ctx, log)
	if rdb != nil {
		defer rdb.Close()
	}

	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		log.Fatal("load cache config", "error", err)
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatal("load rate limit config", "error", err)
	}

	seedCategories(ctx, cfg, db, rdb, cacheCfg.Prefix, log)

	opts := []service.LedgerOption{
		service.WithLogger(log.Logger),
		service.WithPolicy(service.Policy{
			EnforceCapacityFloor:    cfg.EnforceCapacityFloor,
			BlockDeleteWithBookings: cfg.BlockDeleteWithBookings,
		}),
	}
	if pub := startEvents(ctx, cfg.AMQP, log); pub != nil {
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}
	ledger := service.NewLedger(repository.NewLedgerStore(db), opts...)

	users := repository.NewUserRepo(db)
	e := newServer(log)
	router.Register(e, router.Handlers{
		Health:   handler.Health(db),
		Auth:     handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db), log.Logger),
		Slots:    handler.NewSlotHandler(ledger, log.Logger),
		Bookings: handler.NewBookingHandler(ledger, log.Logger),
		Catalog:  handler.NewCatalogHandler(repository.NewCategoryRepo(db), users, log.Logger),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(rlCfg, rdb, log.Logger),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb),
	})

	run(ctx, e, ":"+cfg.Port, log)
}

func connectDatabase(ctx context.Context, cfg config.Config, log *logger.Logger) *sql.DB {
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		log.Fatal("connect mysql", "error", err, "host", cfg.DBHost, "db", cfg.DBName)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migrate", "error", err)
	}
	log.Info("database ready", "host", cfg.DBHost, "db", cfg.DBName)
	return db
}

func connectRedis(ctx context.Context, log *logger.Logger) *redis.Client {
	rcfg, err := config.LoadRedisConfig()
	if err != nil {
		log.Fatal("load redis config", "error", err)
	}
	rdb := config.NewRedisClient(ctx, rcfg)
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and caching disabled")
	}
	return rdb
}

// seedCategories inserts the configured categories and drops cached
// category listings when anything new was written.
func seedCategories(ctx context.Context, cfg config.Config, db *sql.DB, rdb *redis.Client, cachePrefix string, log *logger.Logger) {
	n, err := database.SeedCategories(ctx, db, cfg.SeedCategories)
	if err != nil {
		log.Fatal("seed categories", "error", err)
	}
	if n == 0 {
		return
	}
	log.Info("categories seeded", "inserted", n)
	if err := middleware.InvalidateCache(ctx, rdb, cachePrefix); err != nil {
		log.Warn("cache invalidation failed", "error", err)
	}
}

// startEvents connects the booking event publisher and, when configured,
// the in-process audit consumer.  It returns nil when events are off or
// the broker cannot be reached; bookings then proceed without events.
func startEvents(ctx context.Context, cfg config.AMQPConfig, log *logger.Logger) *service.AMQPPublisher {
	if !cfg.Enabled {
		return nil
	}
	pub, err := service.NewAMQPPublisher(cfg.URL, log.Logger)
	if err != nil {
		log.Warn("amqp publisher unavailable, events disabled", "error", err)
		return nil
	}
	if cfg.Consume {
		consumer := &queue.AuditConsumer{URL: cfg.URL, LogPath: cfg.AuditLogPath, Log: log.Logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "error", err)
			}
		}()
	}
	log.Info("booking events enabled", "exchange", queue.ExchangeName)
	return pub
}

func newServer(log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	return e
}

func run(ctx context.Context, e *echo.Echo, addr string, log *logger.Logger) {
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("listening", "address", addr)
		serverErrors <- e.Start(addr)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		_ = e.Close()
	}
	log.Info("server stopped")
}
