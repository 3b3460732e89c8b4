package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	api "crmboard/cmd/api"
	authdomain "crmboard/internal/auth/domain"
	authRepo "crmboard/internal/auth/repository"
	authUsecase "crmboard/internal/auth/usecase"
	boarddomain "crmboard/internal/board/domain"
	boardRepo "crmboard/internal/board/repository"
	"crmboard/internal/board/scheduler"
	boardUsecase "crmboard/internal/board/usecase"
	"crmboard/internal/realtime"
	"crmboard/pkg/config"
	"crmboard/pkg/database"
	"crmboard/pkg/logger"
	"crmboard/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logData, err := logger.New().FromPath(cfg.LogFile).WithLevel(cfg.LogLevel).Make()
	if err != nil {
		panic(err)
	}
	defer logData.Close()
	log := logData.Logger
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.Tenant{}, &authdomain.User{}, &authdomain.RefreshToken{},
		&boarddomain.Stage{}, &boarddomain.Card{}, &boarddomain.CardHistory{}, &boarddomain.Snapshot{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	stageRepo := boardRepo.NewStageRepository(db)
	cardRepo := boardRepo.NewCardRepository(db)
	snapshotRepo := boardRepo.NewSnapshotRepository(db)

	m := metrics.New()

	// Realtime fan-out, shared across instances when redis is configured
	hub := realtime.NewHub(realtime.WithHubMetrics(m), realtime.WithHubLogger(log))
	var publisher boardUsecase.Publisher = hub
	if cfg.RedisURL != "" {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		bridge := realtime.NewRedisBridge(client, hub, realtime.DefaultChannel, log)
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("redis bridge stopped")
			}
		}()
	} else {
		log.Warn().Msg("REDIS_URL not set, realtime events stay on this instance")
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg)
	boardUsecaseInstance := boardUsecase.NewBoardUsecase(stageRepo, cardRepo, snapshotRepo, publisher,
		boardUsecase.WithLogger(log), boardUsecase.WithMetrics(m))

	janitor := scheduler.NewSnapshotJanitor(snapshotRepo, cfg.SnapshotRetention, cfg.JanitorInterval, m, log)
	janitor.Start()
	defer janitor.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, boardUsecaseInstance, hub, m, cfg, log)

	// Start server
	if err := handler.Start(ctx, ":"+cfg.Port); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
}
