package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"je-portal/backend/internal/auth"
	"je-portal/backend/internal/config"
	"je-portal/backend/internal/db"
	"je-portal/backend/internal/handlers"
	"je-portal/backend/internal/logger"
	"je-portal/backend/internal/messaging"
	"je-portal/backend/internal/middleware"
	"je-portal/backend/internal/notify"
	"je-portal/backend/internal/realtime"
	"je-portal/backend/internal/router"
	"je-portal/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = appLog.Sync() }()

	rootCtx, stopRoot := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopRoot()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		appLog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx); err != nil {
			appLog.Fatal("failed to apply schema", zap.Error(err))
		}
		appLog.Info("schema applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			appLog.Fatal("invalid redis url", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			appLog.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	authService, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		appLog.Fatal("failed to init auth", zap.Error(err))
	}

	hub := realtime.NewHub(appLog)
	broadcaster := realtime.NewHandle()
	if redisClient != nil {
		bridge := realtime.NewRedisBridge(redisClient, cfg.Redis.Channel, hub, appLog, 1024)
		go func() {
			if err := bridge.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("redis bridge stopped", zap.Error(err))
			}
		}()
		broadcaster.Install(bridge)
	} else {
		broadcaster.Install(hub)
	}

	users := store.NewUsers(database.DB)
	notifier := notify.NewService(store.NewNotifications(database.DB), users, broadcaster, appLog)
	messenger := messaging.NewService(store.NewMessages(database.DB), broadcaster, appLog)

	hour, minute, _ := config.ParseClock(cfg.Retention.RunAt)
	var locker notify.Locker
	if redisClient != nil {
		locker = notify.NewRedisLocker(redisClient)
	}
	sweeper := notify.NewSweeper(notifier, cfg.Retention.MaxAgeDays, hour, minute, locker, appLog)
	go sweeper.Start(rootCtx)

	var limiter middleware.Limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if redisClient != nil {
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, appLog)
	}

	api := handlers.NewAPI(users, authService, notifier, messenger, appLog)
	api.DB = database
	api.Hub = hub
	api.CookieSecure = cfg.Auth.CookieSecure

	wsServer := realtime.NewServer(hub, appLog, cfg.Server.FrontendOrigin, cfg.Realtime.SendBuffer)
	rt := router.New(api, authService, limiter, cfg.Server.FrontendOrigin, wsServer)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.Instrument(rt, appLog),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	appLog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("shutdown error", zap.Error(err))
	}
}
