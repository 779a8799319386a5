package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// QAEntry is one curated question/answer pair. Entries are numbered by their
// position in id order; that position is the number the matcher hands back,
// so the load order must be stable across reads.
type QAEntry struct {
	ID       int64
	Question string
	Answer   string
}

// Knowledge reads the curated question/answer catalogue from Postgres.
type Knowledge struct {
	db *sql.DB
}

// NewKnowledge builds a knowledge-base repository over the given database.
func NewKnowledge(db *sql.DB) *Knowledge {
	if db == nil {
		panic("store: database handle cannot be nil")
	}
	return &Knowledge{db: db}
}

// LoadAll returns every entry in id order.
func (k *Knowledge) LoadAll(ctx context.Context) ([]QAEntry, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT id, question, answer FROM qa_entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load qa entries: %w", err)
	}
	defer rows.Close()

	var entries []QAEntry
	for rows.Next() {
		var e QAEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer); err != nil {
			return nil, fmt.Errorf("store: failed to scan qa entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to iterate qa entries: %w", err)
	}
	return entries, nil
}

// Add appends a new entry and returns its id.
func (k *Knowledge) Add(ctx context.Context, question, answer string) (int64, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return 0, errors.New("store: question and answer required")
	}

	var id int64
	err := k.db.QueryRowContext(ctx,
		`INSERT INTO qa_entries (question, answer) VALUES ($1, $2) RETURNING id`,
		question, answer,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: failed to insert qa entry: %w", err)
	}
	return id, nil
}

// Count returns the number of entries.
func (k *Knowledge) Count(ctx context.Context) (int, error) {
	var count int
	if err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: failed to count qa entries: %w", err)
	}
	return count, nil
}
