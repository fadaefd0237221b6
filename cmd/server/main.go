package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warbands/internal/auth"
	"github.com/freeeve/warbands/internal/bot"
	"github.com/freeeve/warbands/internal/config"
	"github.com/freeeve/warbands/internal/handler"
	"github.com/freeeve/warbands/internal/logger"
	"github.com/freeeve/warbands/internal/middleware"
	"github.com/freeeve/warbands/internal/repository"
	"github.com/freeeve/warbands/internal/repository/postgres"
	redisrepo "github.com/freeeve/warbands/internal/repository/redis"
	"github.com/freeeve/warbands/internal/scenario"
	"github.com/freeeve/warbands/internal/service"
	"github.com/freeeve/warbands/internal/telemetry"
)

func main() {
	// Not fatal: variables may come from the environment directly.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Init(false)
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(cfg.DevMode)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}
	log.Info().Str("port", cfg.Port).Bool("devMode", cfg.DevMode).
		Dur("combatChoiceTimeout", cfg.CombatChoiceTimeout).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tracer := telemetry.NoopTracer()
	if cfg.OTelEnabled {
		shutdown, err := telemetry.Setup(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Tracing disabled, OTLP exporter setup failed")
		} else {
			defer shutdown(context.Background())
			tracer = telemetry.Tracer("server")
		}
	}

	// Database (optional: sessions are still playable without an archive)
	var archive repository.SessionArchive
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Database unavailable, running without session archive")
			db = nil
		} else {
			defer db.Close()
			if cfg.MigrationsDir != "" {
				if err := postgres.Migrate(ctx, db, cfg.MigrationsDir); err != nil {
					log.Fatal().Err(err).Str("dir", cfg.MigrationsDir).Msg("Migration failed")
				}
			}
			archive = postgres.NewArchive(db)
		}
	}

	// Redis (optional: live snapshots and combat timers)
	var cache repository.SessionCache
	var redisClient *redisrepo.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisrepo.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without live snapshots")
			redisClient = nil
		} else {
			defer redisClient.Close()
			cache = redisClient
			if err := redisClient.EnableExpiryEvents(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (combat timers fall back to polling)")
			}
		}
	}

	// Scenarios
	scenarios, err := scenario.LoadDir(cfg.ScenarioDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.ScenarioDir).Msg("No bundled scenarios loaded")
		scenarios = nil
	} else {
		log.Info().Strs("scenarios", scenario.Names(scenarios)).Msg("Scenarios loaded")
	}

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	turnSvc := service.NewTurnService(service.NewRegistry(), archive, cache, wsHub,
		bot.NewCollaborator(bot.StrategyForDifficulty(cfg.BotDifficulty)),
		service.Options{
			AITimeout:           cfg.AITimeout,
			CombatChoiceTimeout: cfg.CombatChoiceTimeout,
			DefaultSiegeCost:    cfg.DefaultSiegeCost,
			FinishedRetention:   cfg.FinishedRetention,
			Tracer:              tracer,
		})

	// Timer listener (auto-FIGHT on expiry)
	var rdb *goredis.Client
	if redisClient != nil {
		rdb = redisClient.PubSubClient()
	}
	timerListener := service.NewTimerListener(rdb, turnSvc)

	// Handlers
	authHandler := handler.NewAuthHandler(jwtMgr, cfg.DevMode)
	sessionHandler := handler.NewSessionHandler(turnSvc, scenarios)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, turnSvc, handler.RateLimit{
		PerSecond: cfg.WSRateLimit,
		Burst:     cfg.WSRateBurst,
	})

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "postgres": "disabled", "redis": "disabled"}
		if db != nil {
			status["postgres"] = "ok"
			if err := db.PingContext(r.Context()); err != nil {
				status["postgres"], status["status"] = err.Error(), "degraded"
			}
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(r.Context()); err != nil {
				status["redis"], status["status"] = err.Error(), "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	// Auth (public)
	mux.HandleFunc("POST /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /scenarios", sessionHandler.ListScenarios)
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{code}", sessionHandler.GetSession)
	api.HandleFunc("GET /sessions/{code}/history", sessionHandler.GetHistory)
	api.HandleFunc("POST /sessions/{code}/restore", sessionHandler.RestoreSession)
	api.HandleFunc("POST /sessions/{code}/seats/{faction}/transfer", sessionHandler.TransferSeat)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux,
		middleware.Recover,
		middleware.Logger,
		middleware.Tracing(tracer),
		middleware.CORS("*"),
		middleware.JSON,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active sessions (rebuild the registry from Postgres and Redis)
	if err := turnSvc.RecoverSessions(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	// Start timer listener
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
