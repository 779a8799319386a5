// Seeds the knowledge base from a JSON file of question/answer pairs.
//
// Usage: go run scripts/seed-knowledge.go <qa-file.json>
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/kmswo146/pipl-cs/internal/store"
)

type qaFile struct {
	Entries []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"entries"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-knowledge.go <qa-file.json>")
		os.Exit(1)
	}

	_ = godotenv.Load()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	var file qaFile
	if err := json.Unmarshal(data, &file); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	if len(file.Entries) == 0 {
		fmt.Fprintln(os.Stderr, "no entries to seed")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	knowledge := store.NewKnowledge(db)
	for i, entry := range file.Entries {
		id, err := knowledge.Add(ctx, entry.Question, entry.Answer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to add entry %d: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("added entry %d (id=%d): %s\n", i+1, id, entry.Question)
	}

	count, err := knowledge.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to count entries: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("knowledge base now holds %d entries\n", count)
}
