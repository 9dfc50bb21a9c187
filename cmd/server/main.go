package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumeochat/messenger-go/internal/config"
	"github.com/lumeochat/messenger-go/internal/database"
	"github.com/lumeochat/messenger-go/internal/handler"
	"github.com/lumeochat/messenger-go/internal/jobs"
	"github.com/lumeochat/messenger-go/internal/middleware"
	"github.com/lumeochat/messenger-go/internal/push"
	"github.com/lumeochat/messenger-go/internal/redis"
	"github.com/lumeochat/messenger-go/internal/repository"
	"github.com/lumeochat/messenger-go/internal/service"
	"github.com/lumeochat/messenger-go/internal/token"
	"github.com/lumeochat/messenger-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	deviceRepo := repository.NewDeviceRepository(db.DB)

	authority := token.NewAuthority(
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL(), cfg.RefreshTokenTTL(),
	)

	hub := ws.NewHub(redisClient)
	defer hub.Close()

	notifier := push.NewLogNotifier()

	authService := service.NewAuthService(userRepo, authority)
	presenceService := service.NewPresenceService(userRepo, hub)
	convService := service.NewConversationService(convRepo, userRepo)
	messageService := service.NewMessageService(
		messageRepo, convRepo, userRepo, deviceRepo, hub, presenceService, notifier,
	)

	gateway := ws.NewGateway(
		hub, authority, userRepo, convService, messageService, presenceService, cfg.AllowedOrigin,
	)

	authMiddleware := middleware.NewAuthMiddleware(authority, userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	authHandler := handler.NewAuthHandler(authService)
	convHandler := handler.NewConversationHandler(convService, messageService)
	messageHandler := handler.NewMessageHandler(messageService)
	deviceHandler := handler.NewDeviceHandler(deviceRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	// The websocket endpoint sits outside the request timeout; its auth
	// happens in the handshake, not the middleware chain.
	r.Get("/ws", gateway.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Mount("/auth", authHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Use(rateLimitMiddleware.Handler)

			r.Post("/auth/logout", authHandler.Logout)
			r.Mount("/conversations", convHandler.Routes())
			r.Mount("/messages", messageHandler.Routes())
			r.Mount("/devices", deviceHandler.Routes())
		})
	})

	maintenanceJob := jobs.NewMaintenanceJob(
		userRepo, deviceRepo, presenceService,
		cfg.StalePresenceThreshold(), config.MaintenanceJobInterval,
	)
	maintenanceJob.Start()
	defer maintenanceJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays zero: websocket connections outlive any
		// sensible response deadline.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
