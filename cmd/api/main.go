package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kmswo146/pipl-cs/cmd/mainconfig"
	"github.com/kmswo146/pipl-cs/internal/assistant"
	appconfig "github.com/kmswo146/pipl-cs/internal/config"
	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/observability/metrics"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/internal/webhook"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting support bot webhook server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	conversations := store.NewConversations(dynamoClient, cfg.ConversationsTable, logger)

	redisClient := mainconfig.NewRedisClient(cfg)
	settings := store.NewSettings(redisClient, logger)

	botMetrics := metrics.NewBotMetrics(nil)

	// The assistant needs the platform client and the account database;
	// without either, admin notes are simply ignored.
	var notes *assistant.NoteProcessor
	if cfg.DatabaseURL != "" && cfg.IntercomAccessToken != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open account database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		gateway, err := mainconfig.NewLLMGateway(cfg, logger)
		if err != nil {
			logger.Error("failed to build LLM gateway", "error", err)
			os.Exit(1)
		}

		platform, err := intercom.NewClient(intercom.Config{
			BaseURL:     cfg.IntercomBaseURL,
			AccessToken: cfg.IntercomAccessToken,
		}, logger)
		if err != nil {
			logger.Error("failed to build Intercom client", "error", err)
			os.Exit(1)
		}

		registry := assistant.NewRegistry()
		assistant.RegisterDataFunctions(registry, assistant.NewData(db))
		engine := assistant.NewEngine(gateway, registry, cfg.BotAssistantName, logger,
			assistant.WithModels(cfg.DefaultModel, cfg.FastModel),
			assistant.WithMaxIterations(cfg.AssistantMaxIterations),
		)
		notes = assistant.NewNoteProcessor(engine, platform, cfg.BotAssistantName, cfg.BotAdminID, logger)
	} else {
		logger.Warn("assistant disabled: database or Intercom token not configured")
	}

	var notesArg webhook.NoteProcessor
	if notes != nil {
		notesArg = notes
	}
	events := webhook.NewHandler(conversations, notesArg, cfg.BotAdminID, botMetrics, logger)
	admin := webhook.NewAdminHandler(settings, logger)

	r := webhook.NewRouter(webhook.RouterConfig{
		Events:         events,
		Admin:          admin,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
