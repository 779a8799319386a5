package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/kmswo146/pipl-cs/cmd/mainconfig"
	appconfig "github.com/kmswo146/pipl-cs/internal/config"
	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/observability/metrics"
	"github.com/kmswo146/pipl-cs/internal/reply"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/internal/worker"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting support bot conversation worker",
		"env", cfg.Env,
		"poll_interval", cfg.PollInterval.String(),
	)

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsConfig)
	conversations := store.NewConversations(dynamoClient, cfg.ConversationsTable, logger)

	redisClient := mainconfig.NewRedisClient(cfg)
	settings := store.NewSettings(redisClient, logger)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	knowledge := store.NewKnowledge(db)

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

	templates := reply.DefaultTemplates()
	if cfg.ReplyTemplatesPath != "" {
		templates, err = reply.LoadTemplates(cfg.ReplyTemplatesPath)
		if err != nil {
			logger.Error("failed to load reply templates", "path", cfg.ReplyTemplatesPath, "error", err)
			os.Exit(1)
		}
	}

	triage := reply.NewClassifier(gateway, templates, cfg.DefaultModel, logger)
	matcher := reply.NewMatcher(gateway, knowledge, cfg.DefaultModel, logger)
	engine := reply.NewEngine(settings, triage, matcher, templates, logger,
		reply.WithTestingGate(cfg.TestingGate, cfg.TestEmail),
	)

	botMetrics := metrics.NewBotMetrics(nil)

	poller := worker.NewPoller(conversations, platform, engine, botMetrics, logger, worker.Options{
		BotAdminID:         cfg.BotAdminID,
		PollInterval:       cfg.PollInterval,
		DelayMin:           cfg.ReplyDelayMin,
		DelayMax:           cfg.ReplyDelayMax,
		InterItemPause:     cfg.InterItemPause,
		StalenessTolerance: cfg.StalenessTolerance,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("conversation worker stopped")
}
