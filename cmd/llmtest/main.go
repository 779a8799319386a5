// Command llmtest sends one prompt through the completion gateway. Handy for
// checking Azure OpenAI credentials and deployment names before running the
// worker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kmswo146/pipl-cs/cmd/mainconfig"
	appconfig "github.com/kmswo146/pipl-cs/internal/config"
	"github.com/kmswo146/pipl-cs/internal/llm"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	gateway, err := mainconfig.NewLLMGateway(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build gateway: %v", err)
	}

	prompt := "Reply with the single word: pong"
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := gateway.Complete(ctx, llm.Request{
		Model: cfg.FastModel,
		Messages: []llm.ChatMessage{
			{Role: llm.ChatRoleUser, Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		log.Fatalf("completion failed: %v", err)
	}

	fmt.Printf("model: %s\n", cfg.FastModel)
	fmt.Printf("latency: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("response: %s\n", resp.Text)
}
