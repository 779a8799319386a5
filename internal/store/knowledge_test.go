package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestLoadAllOrdersByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "question", "answer"}).
		AddRow(1, "How do I connect an email account?", "Go to Settings and pick Email Accounts.").
		AddRow(2, "What is the warmup schedule?", "Warmup ramps over 14 days.")
	mock.ExpectQuery(`SELECT id, question, answer FROM qa_entries ORDER BY id ASC`).WillReturnRows(rows)

	kb := NewKnowledge(db)
	entries, err := kb.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), entries[0].ID)
	require.Equal(t, "What is the warmup schedule?", entries[1].Question)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAllQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, question, answer FROM qa_entries`).
		WillReturnError(errors.New("connection refused"))

	kb := NewKnowledge(db)
	_, err = kb.LoadAll(context.Background())
	require.ErrorContains(t, err, "failed to load qa entries")
}

func TestAddReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO qa_entries`).
		WithArgs("How do I pause a campaign?", "Open the campaign and hit Pause.").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	kb := NewKnowledge(db)
	id, err := kb.Add(context.Background(), "  How do I pause a campaign?  ", "Open the campaign and hit Pause.")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddRejectsEmptyFields(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kb := NewKnowledge(db)
	_, err = kb.Add(context.Background(), "", "answer")
	require.Error(t, err)
	_, err = kb.Add(context.Background(), "question", "   ")
	require.Error(t, err)
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM qa_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	kb := NewKnowledge(db)
	count, err := kb.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, count)
}
