package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/gighall/crewbook/internal/config"
	"github.com/gighall/crewbook/internal/database"
	"github.com/gighall/crewbook/internal/handler"
	"github.com/gighall/crewbook/internal/logging"
	"github.com/gighall/crewbook/internal/messaging"
	"github.com/gighall/crewbook/internal/middleware"
	"github.com/gighall/crewbook/internal/queue"
	"github.com/gighall/crewbook/internal/repository"
	"github.com/gighall/crewbook/internal/router"
	"github.com/gighall/crewbook/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.Init(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	gigs := repository.NewGigRepo(db)
	roles := repository.NewBandRoleRepo(db)
	history := repository.NewHistoryRepo(db)
	shortlist := repository.NewShortlistRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	notifications := repository.NewNotificationRepo(db)

	publisher := queue.NewPublisher(logger)
	fanout := service.NewFanout(publisher, logger)

	consumers := queue.NewConsumers(users, history, notifications, logger)
	go consumers.StartNotificationConsumer()
	go consumers.StartTrustConsumer()

	var chat *messaging.Client
	if cfg.MessagingBaseURL != "" {
		chat = messaging.NewClient(cfg.MessagingBaseURL)
	} else {
		logger.Warn("MESSAGING_BASE_URL not set; crew chat creation disabled")
	}

	// Redis is optional: without it the response cache and rate limiter
	// middlewares are simply not installed.
	var cacheMW, limitMW echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		if cacheCfg := config.LoadCacheConfig(); cacheCfg.Enabled {
			cacheMW = middleware.NewRedisCache(cacheCfg, rdb)
		}
		if rlCfg := config.LoadRateLimitConfig(); rlCfg.Enabled {
			limitMW = middleware.NewTokenBucket(rlCfg, rdb)
		}
	} else {
		logger.Warn("redis unavailable; response cache and rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.Register(e, router.Handlers{
		Auth:          handler.NewAuthHandler(cfg, users, tokens),
		Gigs:          handler.NewGigHandler(gigs, roles, history, fanout),
		Applicants:    handler.NewApplicantHandler(gigs, roles, history, users, fanout, chat, logger),
		Bookings:      handler.NewBookingHandler(gigs, roles, history, users, fanout, chat, logger),
		Shortlist:     handler.NewShortlistHandler(gigs, shortlist, history, fanout),
		CrewChat:      handler.NewCrewChatHandler(gigs, history, fanout, chat, logger),
		Notifications: handler.NewNotificationHandler(notifications),
	}, cfg.JWTSecret, cacheMW, limitMW)

	addr := ":" + cfg.Port
	logger.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
