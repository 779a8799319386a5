package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

const botStatusKey = "settings:bot_status"

const (
	botStatusActive   = "ACTIVE"
	botStatusInactive = "INACTIVE"
)

// Settings holds operator-facing runtime switches in Redis.
type Settings struct {
	client redis.UniversalClient
	logger *logging.Logger
}

// NewSettings builds a settings store backed by the provided Redis client.
func NewSettings(client redis.UniversalClient, logger *logging.Logger) *Settings {
	if client == nil {
		panic("store: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Settings{client: client, logger: logger}
}

// BotActive reports whether the bot is globally enabled. A missing key means
// the bot has never been activated and counts as inactive, so a wiped store
// fails closed rather than replying to customers.
func (s *Settings) BotActive(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, botStatusKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: failed to read bot status: %w", err)
	}
	return val == botStatusActive, nil
}

// SetBotActive flips the global bot switch.
func (s *Settings) SetBotActive(ctx context.Context, active bool) error {
	status := botStatusInactive
	if active {
		status = botStatusActive
	}
	if err := s.client.Set(ctx, botStatusKey, status, 0).Err(); err != nil {
		return fmt.Errorf("store: failed to set bot status: %w", err)
	}
	s.logger.Info("bot status updated", "status", status)
	return nil
}
