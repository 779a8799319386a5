package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Intercom API
	IntercomBaseURL       string
	IntercomAccessToken   string
	IntercomWebhookSecret string
	BotAdminID            string
	BotAssistantName      string

	// Azure OpenAI
	OpenAIEndpoint   string
	OpenAIAPIKey     string
	OpenAIAPIVersion string
	DefaultModel     string
	FastModel        string
	LLMMaxRetries    int

	// Conversation store (DynamoDB)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ConversationsTable  string

	// Knowledge base (PostgreSQL)
	DatabaseURL string

	// Settings store (Redis)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Dispatcher timing
	PollInterval       time.Duration
	ReplyDelayMin      time.Duration
	ReplyDelayMax      time.Duration
	InterItemPause     time.Duration
	StalenessTolerance time.Duration

	// Testing gate: when enabled, stages beyond the strict matcher only run
	// for the configured test email.
	TestingGate bool
	TestEmail   string

	// Optional JSON file overriding the built-in reply template sets.
	ReplyTemplatesPath string

	// Reasoning engine
	AssistantMaxIterations int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		IntercomBaseURL:       getEnv("INTERCOM_BASE_URL", "https://api.intercom.io"),
		IntercomAccessToken:   getEnv("INTERCOM_TOKEN", ""),
		IntercomWebhookSecret: getEnv("INTERCOM_WEBHOOK_SECRET", ""),
		BotAdminID:            getEnv("BOT_ADMIN_ID", ""),
		BotAssistantName:      getEnv("BOT_ASSISTANT_NAME", "katie"),

		OpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		OpenAIAPIKey:     getEnv("AZURE_OPENAI_KEY", ""),
		OpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-12-01-preview"),
		DefaultModel:     getEnv("DEFAULT_MODEL", "gpt-4.1"),
		FastModel:        getEnv("FAST_MODEL", "gpt-4o-mini"),
		LLMMaxRetries:    getEnvAsInt("LLM_MAX_RETRIES", 3),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationsTable:  getEnv("CONVERSATIONS_TABLE", "support_conversations"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
		ReplyDelayMin:      getEnvAsDuration("REPLY_DELAY_MIN", 20*time.Second),
		ReplyDelayMax:      getEnvAsDuration("REPLY_DELAY_MAX", 50*time.Second),
		InterItemPause:     getEnvAsDuration("INTER_ITEM_PAUSE", time.Second),
		StalenessTolerance: getEnvAsDuration("STALENESS_TOLERANCE", 5*time.Minute),

		TestingGate: getEnvAsBool("TESTING_GATE", true),
		TestEmail:   getEnv("TEST_EMAIL", ""),

		ReplyTemplatesPath: getEnv("REPLY_TEMPLATES_PATH", ""),

		AssistantMaxIterations: getEnvAsInt("ASSISTANT_MAX_ITERATIONS", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
