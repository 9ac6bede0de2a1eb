package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vidya-labs/vidya-go-api/internal/config"
	"github.com/vidya-labs/vidya-go-api/internal/database"
	"github.com/vidya-labs/vidya-go-api/internal/handler"
	"github.com/vidya-labs/vidya-go-api/internal/middleware"
	"github.com/vidya-labs/vidya-go-api/internal/models"
	"github.com/vidya-labs/vidya-go-api/internal/repository"
	"github.com/vidya-labs/vidya-go-api/internal/router"
	"github.com/vidya-labs/vidya-go-api/internal/service"
	"github.com/vidya-labs/vidya-go-api/pkg/ai"
	cloud "github.com/vidya-labs/vidya-go-api/pkg/cloudinary"
	"github.com/vidya-labs/vidya-go-api/pkg/raster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Document{},
		&models.Test{},
		&models.Evaluation{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, results caching disabled")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, progress streaming disabled")
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	aiClient, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ChatModel:   cfg.ChatModel,
		VisionModel: cfg.VisionModel,
		CallTimeout: cfg.AICallTimeout,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	documentRepo := repository.NewDocumentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	testRepo := repository.NewTestRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	documentService := service.NewDocumentService(documentRepo, uploader, cfg.MaxUploadMB, logger)
	extractionService := service.NewExtractionService(
		documentRepo,
		raster.New(logger),
		aiClient,
		service.NewHTTPBlobFetcher(logger),
		natsConn,
		cfg.ExtractionPageCap,
		logger,
	)
	evaluationService := service.NewEvaluationService(aiClient, cfg.EvaluationBatchSize, cfg.SingleShotThreshold, logger)
	gradingService := service.NewGradingService(
		evaluationRepo,
		studentRepo,
		testRepo,
		documentRepo,
		evaluationService,
		redisClient,
		cfg.ResultsCacheTTL,
		logger,
	)

	documentHandler := handler.NewDocumentHandler(
		documentService,
		extractionService,
		validate,
		cfg.ExtractionBatchSize,
		cfg.ExtractionConcurrency,
		logger,
	)
	gradingHandler := handler.NewGradingHandler(gradingService, validate, logger)
	rosterHandler := handler.NewRosterHandler(studentRepo, testRepo, validate, logger)
	progressHandler := handler.NewProgressHandler(service.NewNATSProgressEvents(natsConn), documentService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.MaxUploadMB + 1) << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		DocumentHandler: documentHandler,
		GradingHandler:  gradingHandler,
		RosterHandler:   rosterHandler,
		ProgressHandler: progressHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
