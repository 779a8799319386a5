// Command botctl manages the global auto-reply switch.
//
// Usage:
//
//	botctl status        Check current status
//	botctl activate      Enable auto-replies
//	botctl deactivate    Disable auto-replies
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmswo146/pipl-cs/cmd/mainconfig"
	appconfig "github.com/kmswo146/pipl-cs/internal/config"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

func main() {
	if len(os.Args) != 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New("error")
	settings := store.NewSettings(mainconfig.NewRedisClient(cfg), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "status":
		showStatus(ctx, settings)
	case "activate":
		if err := settings.SetBotActive(ctx, true); err != nil {
			fatal("failed to activate bot", err)
		}
		fmt.Println("Bot ACTIVATED - auto-replies enabled")
		showStatus(ctx, settings)
	case "deactivate":
		if err := settings.SetBotActive(ctx, false); err != nil {
			fatal("failed to deactivate bot", err)
		}
		fmt.Println("Bot DEACTIVATED - auto-replies disabled")
		showStatus(ctx, settings)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func showStatus(ctx context.Context, settings *store.Settings) {
	active, err := settings.BotActive(ctx)
	if err != nil {
		fatal("failed to read bot status", err)
	}
	status := "INACTIVE"
	if active {
		status = "ACTIVE"
	}
	fmt.Printf("Bot status: %s\n", status)
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: botctl <status|activate|deactivate>")
}
