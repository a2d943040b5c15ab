package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "boleto-import-backend/config"
	"boleto-import-backend/middleware"
	"boleto-import-backend/utils"

	// Repositories
	imports_repositories "boleto-import-backend/imports/repositories"

	// Services
	imports_services "boleto-import-backend/imports/services"

	// Routes
	health_routes "boleto-import-backend/health/routes"
	imports_routes "boleto-import-backend/imports/routes"

	// WebSocket
	"boleto-import-backend/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long in-flight requests get on SIGINT/SIGTERM
const shutdownTimeout = 30 * time.Second

func main() {
	// Load environment variables first so the logger sees LOG_LEVEL
	envErr := config.LoadEnv()

	// Initialize Zap logger
	config.InitLogger()
	defer config.Logger.Sync()

	if envErr != nil {
		config.Logger.Warn("No .env file loaded, relying on process environment", zap.Error(envErr))
	}
	settings := config.LoadSettings()

	if settings.OlympiaBaseURL == "" || settings.OlympiaToken == "" {
		config.Logger.Fatal("OLYMPIA_BASE_URL and OLYMPIA_TOKEN must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database and redis
	db, err := config.ConfigureDatabase()
	if err != nil {
		config.Logger.Fatal("Database setup failed", zap.Error(err))
	}

	redisClient, err := config.InitRedisServer(ctx, settings)
	if err != nil {
		config.Logger.Fatal("Redis setup failed", zap.Error(err))
	}
	defer redisClient.Close()

	asynqRedisOpt := config.AsynqRedisOpt(settings)
	asynqClient := asynq.NewClient(asynqRedisOpt)
	defer asynqClient.Close()

	// ------ Progress hub, fed from Redis so every instance sees worker events ------
	wsHub := websocket.NewHub()
	go wsHub.Run()
	defer wsHub.Stop()

	go func() {
		if err := websocket.RunProgressBridge(ctx, redisClient, wsHub, config.Logger); err != nil {
			config.Logger.Error("Progress bridge stopped", zap.Error(err))
		}
	}()

	// Repositories
	importRepo := imports_repositories.NewImportRepository(db)

	// Services
	fileStorage := utils.NewLocalFileStorage(settings.UploadDir)
	importService := imports_services.NewImportService(importRepo, fileStorage, asynqClient, imports_services.ImportServiceConfig{
		MaxRows:     settings.MaxRowsPerImport,
		APIBaseURL:  settings.APIBaseURL,
		ReportsDir:  settings.ReportsDir,
		TaskRetries: settings.ImportQueueRetries,
		TaskTimeout: settings.ImportTaskTimeout,
	}, config.Logger)

	issuer := imports_services.NewOlympiaBankClient(imports_services.OlympiaBankConfig{
		BaseURL:     settings.OlympiaBaseURL,
		Token:       settings.OlympiaToken,
		MinInterval: settings.IssuerMinInterval,
		Timeout:     settings.IssuerTimeout,
	}, config.Logger)
	defer issuer.Close()

	rowProcessor := imports_services.NewRowProcessor(issuer, importRepo, importRepo, imports_services.RowProcessorConfig{
		MaxRetries:  settings.MaxRetries,
		BackoffBase: settings.RetryBackoffBase,
	}, config.Logger)

	notifiers := []imports_services.CompletionNotifier{
		imports_services.NewWebhookNotifier(settings.WebhookTimeout, config.Logger),
	}
	if emailNotifier := imports_services.NewEmailNotifier(imports_services.SMTPConfig{
		Host:     settings.SMTPHost,
		Port:     settings.SMTPPort,
		User:     settings.SMTPUser,
		Password: settings.SMTPPassword,
		From:     settings.SMTPFrom,
	}, settings.APIBaseURL, config.Logger); emailNotifier != nil {
		notifiers = append(notifiers, emailNotifier)
	}

	importProcessor := imports_services.NewImportProcessor(
		importRepo,
		rowProcessor,
		websocket.NewRedisProgressPublisher(redisClient),
		settings.MaxConcurrency,
		config.Logger,
		notifiers...,
	)

	// ------ Import worker: one import at a time ------
	worker := imports_services.NewImportWorker(asynqRedisOpt, config.Logger)
	if err := worker.Start(imports_services.NewImportMux(imports_services.NewImportTaskHandler(importProcessor, config.Logger))); err != nil {
		config.Logger.Fatal("Import worker failed to start", zap.Error(err))
	}

	// Background cleanup tasks
	cleanup, err := utils.StartScheduledCleanup(config.Logger, settings.FileTTL, settings.UploadDir, settings.ReportsDir)
	if err != nil {
		config.Logger.Fatal("Cleanup scheduler failed to start", zap.Error(err))
	}

	// ------ HTTP API ------
	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})
	middleware.InitCors(app, settings.CorsOrigins)
	app.Use(middleware.RequestLogger(config.Logger))

	health_routes.HealthRouterInit(app, db, redisClient)
	imports_routes.ImportRouterInit(app, importService, wsHub, config.Logger)

	go func() {
		<-ctx.Done()
		config.Logger.Info("Shutdown signal received")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			config.Logger.Error("HTTP shutdown failed", zap.Error(err))
		}
	}()

	config.Logger.Info("Server starting",
		zap.String("port", settings.Port),
		zap.Int("max_concurrency", settings.MaxConcurrency),
		zap.Int("max_retries", settings.MaxRetries),
		zap.Duration("issuer_min_interval", settings.IssuerMinInterval),
	)
	if err := app.Listen(":" + settings.Port); err != nil && !errors.Is(err, context.Canceled) {
		config.Logger.Error("Server failed", zap.String("port", settings.Port), zap.Error(err))
	}

	// Stop taking work, then let the running import finish or hit its timeout
	<-cleanup.Stop().Done()
	worker.Shutdown()
	config.Logger.Info("Shutdown complete")
}
