package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/scydb-api/internal/config"
	"github.com/iliyamo/scydb-api/internal/database"
	"github.com/iliyamo/scydb-api/internal/handler"
	"github.com/iliyamo/scydb-api/internal/logging"
	"github.com/iliyamo/scydb-api/internal/mail"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/observability/metrics"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/repository"
	"github.com/iliyamo/scydb-api/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("scydb", reg)

	var events queue.Publisher = queue.Nop{}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.AMQPURL != "" {
		pub := queue.NewAMQPPublisher(cfg.AMQPURL, log)
		defer pub.Close()
		events = pub

		consumer := queue.Consumer{URL: cfg.AMQPURL, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("activity consumer stopped", zap.Error(err))
			}
		}()
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	genres := repository.NewGenreRepo(db)
	movies := repository.NewMovieRepo(db)
	reviews := repository.NewReviewRepo(db)
	mailer := mail.NewSMTPSender(cfg, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log, cfg.IsProduction())

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())
	e.Use(middleware.Metrics(m))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         15552000,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("10K"))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	router.Register(e, router.Handlers{
		Auth:    handler.NewAuthHandler(cfg, users, mailer, events, m, log),
		Movies:  handler.NewMovieHandler(movies, reviews, cfg.QueryMaxLimit),
		Reviews: handler.NewReviewHandler(reviews, movies, events, m, cfg.QueryMaxLimit),
		Genres:  handler.NewGenreHandler(genres, events, cfg.QueryMaxLimit),
		Roles:   handler.NewRoleHandler(roles, cfg.QueryMaxLimit),
		Users:   handler.NewUserHandler(users, roles, movies, cfg.QueryMaxLimit),
		Health:  &handler.HealthHandler{DB: db, Redis: rdb},
	}, router.Middleware{
		Guard: middleware.Guard{
			Secret:          cfg.JWTSecret,
			Users:           users,
			RequireVerified: cfg.RequireEmailVerification,
		},
		AuthLimit: middleware.NewTokenBucket(
			config.LoadRateLimitConfig("auth", config.AuthRequestsPerWindow, config.RateLimitWindow),
			rdb, middleware.MsgAuthRateLimited, log),
		StdLimit: middleware.NewTokenBucket(
			config.LoadRateLimitConfig("standard", config.StandardRequestsPerWindow, config.RateLimitWindow),
			rdb, middleware.MsgStandardRateLimited, log),
		PublicCache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
