package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"

	"github.com/mikadit/modqueue/internal/config"
	"github.com/mikadit/modqueue/internal/db"
	"github.com/mikadit/modqueue/internal/handler"
	"github.com/mikadit/modqueue/internal/middleware"
	"github.com/mikadit/modqueue/internal/repository"
	"github.com/mikadit/modqueue/internal/router"
	"github.com/mikadit/modqueue/internal/service"
)

func main() {
	cfg := config.Load()
	middleware.InitLogger(cfg.LogLevel, "modqueue")
	log := middleware.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolSettings{
		MaxConns:        int32(cfg.DBMaxConns),
		MinConns:        int32(cfg.DBMinConns),
		ConnectAttempts: cfg.DBConnectAttempts,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()
	rdb := cache.Client()

	handler.InitMetrics(pool)

	// Repositories
	caseRepo := repository.NewCaseRepo(pool)
	postRepo := repository.NewPostRepo(pool)
	topicRepo := repository.NewTopicRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)
	fieldRepo := repository.NewCustomFieldRepo(pool)

	// Services
	signals := service.NewSignalService(rdb, log)
	queue := service.NewQueueService(rdb, log)
	statsSvc := service.NewFlagStatsService(statsRepo, queue, cfg.FlagStatsCeiling, log)
	scoreSvc := service.NewScoreService(pool)
	reviewSvc := service.NewReviewService(
		caseRepo, postRepo, userRepo,
		service.ModGuardian{}, signals, statsSvc, cache, log,
	)
	reportSvc := service.NewReportService(
		caseRepo, postRepo, topicRepo, userRepo, fieldRepo,
		service.ModGuardian{}, cache, cfg.MinScoreVisibility, cfg.ReportPageSize, log,
	)
	flagSvc := service.NewFlagService(caseRepo, signals, cache, log)

	// Background workers
	go service.NewRecalcWorker(pool, scoreSvc, cache).Start(ctx)
	if rdb != nil {
		go service.NewTruncateWorker(rdb, statsSvc, handler.Metrics.StatTruncationsTotal).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:      "modqueue API",
		ServerHeader: "modqueue",
	})

	router.Setup(app, &router.Handlers{
		Review: handler.NewReviewHandler(reviewSvc, cfg.SystemUserID),
		Report: handler.NewReportHandler(reportSvc, cfg.SystemUserID, cfg.ReportPageSize),
		Flag:   handler.NewFlagHandler(flagSvc, cfg.SystemUserID),
		Health: handler.NewHealthHandler(pool, rdb),
	}, cfg.CORSOrigins)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = app.Shutdown()
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("modqueue backend starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
