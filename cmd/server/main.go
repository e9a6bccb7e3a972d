// Command server runs the NutriChat backend: the HTTP API for nutritionist
// directory, session requests, chat sessions, messages and notifications,
// plus the background sweeper that expires stale session requests.
//
// @title                      NutriChat API
// @version                    1.0
// @description                One-to-one chat sessions between users and nutritionists.
// @BasePath                   /api/v1
// @securityDefinitions.apikey UserID
// @in                         header
// @name                       X-User-ID
// @securityDefinitions.apikey NutritionistID
// @in                         header
// @name                       X-Nutritionist-ID
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/docs"
	"github.com/tbourn/nutrichat-backend/internal/config"
	"github.com/tbourn/nutrichat-backend/internal/events"
	httpapi "github.com/tbourn/nutrichat-backend/internal/http"
	"github.com/tbourn/nutrichat-backend/internal/http/handlers"
	"github.com/tbourn/nutrichat-backend/internal/observability"
	"github.com/tbourn/nutrichat-backend/internal/repo"
	"github.com/tbourn/nutrichat-backend/internal/seed"
	"github.com/tbourn/nutrichat-backend/internal/services"
	"github.com/tbourn/nutrichat-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if cfg.DirectorySeedPath != "" {
		if err := seed.LoadAndApply(ctx, db, cfg.DirectorySeedPath); err != nil {
			return err
		}
		log.Info().Str("path", cfg.DirectorySeedPath).Msg("directory seeded")
	}

	pub := newPublisher(cfg.Kafka)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("event publisher close")
		}
	}()

	rdb := newRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	notes := services.NewNotificationDispatcher(db)
	dir := services.NewDirectory(db)
	ledger := services.NewMessageLedger(db, notes, pub, cfg.Session.PreviewRunes, cfg.Session.MaxMessageRunes)
	sessions := services.NewSessionStore(db, notes, pub)
	broker := services.NewRequestBroker(db, dir, notes, ledger, pub, cfg.Session.RequestTTL)
	sweeper := services.NewRequestSweeper(broker, cfg.Session.SweepInterval)
	idem := handlers.NewGormIdempotencyStore(db)

	h := handlers.New(handlers.Services{
		Directory:     dir,
		Requests:      broker,
		Sessions:      sessions,
		Messages:      ledger,
		Notifications: notes,
		Idempotency:   idem,
	}, handlers.Options{
		PollInterval:   cfg.Session.PollInterval,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = version

	r := gin.New()
	deps := httpapi.Deps{DB: db, Handlers: h, Idempotency: idem.Lookup}
	if rdb != nil {
		deps.Redis = rdb
	}
	httpapi.RegisterRoutes(r, cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// newPublisher returns a Kafka publisher when brokers are configured.
// A broker that cannot be reached at startup degrades to no-op publishing.
func newPublisher(cfg config.KafkaConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NopPublisher{}
	}
	p, err := events.NewKafkaPublisher(cfg)
	if err != nil {
		log.Warn().Err(err).Strs("brokers", cfg.Brokers).Msg("kafka unavailable; events disabled")
		return events.NopPublisher{}
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("publishing domain events")
	return p
}

// newRedis connects the shared rate limiter store. Nil means the in-process
// limiter is used.
func newRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable; using in-process rate limiter")
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
