package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
	if cfg.ReplyDelayMin != 20*time.Second || cfg.ReplyDelayMax != 50*time.Second {
		t.Errorf("reply delay window = [%v,%v], want [20s,50s]", cfg.ReplyDelayMin, cfg.ReplyDelayMax)
	}
	if cfg.StalenessTolerance != 5*time.Minute {
		t.Errorf("StalenessTolerance = %v, want 5m", cfg.StalenessTolerance)
	}
	if !cfg.TestingGate {
		t.Error("TestingGate should default to true")
	}
	if cfg.IntercomBaseURL != "https://api.intercom.io" {
		t.Errorf("IntercomBaseURL = %q", cfg.IntercomBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("REPLY_DELAY_MIN", "0s")
	t.Setenv("REPLY_DELAY_MAX", "1s")
	t.Setenv("TESTING_GATE", "false")
	t.Setenv("LLM_MAX_RETRIES", "5")
	t.Setenv("BOT_ADMIN_ID", "8393893")

	cfg := Load()

	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.ReplyDelayMin != 0 || cfg.ReplyDelayMax != time.Second {
		t.Errorf("reply delay window = [%v,%v], want [0,1s]", cfg.ReplyDelayMin, cfg.ReplyDelayMax)
	}
	if cfg.TestingGate {
		t.Error("TestingGate should be overridable to false")
	}
	if cfg.LLMMaxRetries != 5 {
		t.Errorf("LLMMaxRetries = %d, want 5", cfg.LLMMaxRetries)
	}
	if cfg.BotAdminID != "8393893" {
		t.Errorf("BotAdminID = %q", cfg.BotAdminID)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "not-a-duration")
	cfg := Load()
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("invalid duration should fall back to default, got %v", cfg.PollInterval)
	}
}
