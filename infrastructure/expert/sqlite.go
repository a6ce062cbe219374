package expert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ Store = (*SQLiteStore)(nil)

// timeLayout is fixed width so that text ordering is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS expert_answers (
	id          TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	normalized  TEXT NOT NULL UNIQUE,
	answer      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS unanswered_questions (
	normalized  TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	count       INTEGER NOT NULL,
	first_seen  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);
`

// SQLiteStore persists expert answers in a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	matcher Matcher
	now     func() time.Time
}

// NewSQLiteStore opens the database at path and runs migrations. Use
// ":memory:" for a throwaway store.
func NewSQLiteStore(path string, matcher Matcher) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, matcher: matcher, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Lookup tries an exact match on the normalized question and falls back to
// fuzzy matching over all stored questions.
func (s *SQLiteStore) Lookup(ctx context.Context, question string) (string, bool, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return "", false, nil
	}

	var answer string
	err := s.db.QueryRowContext(ctx,
		`SELECT answer FROM expert_answers WHERE normalized = ?`, normalized,
	).Scan(&answer)
	switch {
	case err == nil:
		return answer, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, fmt.Errorf("lookup expert answer: %w", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		return "", false, err
	}
	entry, _, ok := s.matcher.Best(normalized, entries)
	if !ok {
		return "", false, nil
	}
	return entry.Answer, true, nil
}

// RecordUnanswered increments the counter for question.
func (s *SQLiteStore) RecordUnanswered(ctx context.Context, question string) error {
	normalized := Normalize(question)
	if normalized == "" {
		return nil
	}
	now := s.now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unanswered_questions (normalized, question, count, first_seen, last_seen)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(normalized) DO UPDATE SET count = count + 1, last_seen = excluded.last_seen`,
		normalized, strings.TrimSpace(question), now, now,
	)
	if err != nil {
		return fmt.Errorf("record unanswered question: %w", err)
	}
	return nil
}

// Add stores or replaces the answer for question.
func (s *SQLiteStore) Add(ctx context.Context, question, answer string) (Entry, error) {
	normalized, err := checkEntry(question, answer)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Question:  strings.TrimSpace(question),
		Answer:    strings.TrimSpace(answer),
		CreatedAt: s.now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM expert_answers WHERE normalized = ?`, normalized); err != nil {
		return Entry{}, fmt.Errorf("replace expert answer: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO expert_answers (id, question, normalized, answer, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Question, normalized, entry.Answer, entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert expert answer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM unanswered_questions WHERE normalized = ?`, normalized); err != nil {
		return Entry{}, fmt.Errorf("clear unanswered question: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

// Delete removes the entry with id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expert_answers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expert answer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expert answer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expert answer %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// List returns all entries, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at FROM expert_answers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list expert answers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &created); err != nil {
			return nil, fmt.Errorf("scan expert answer: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListUnanswered returns logged questions, most frequent first.
func (s *SQLiteStore) ListUnanswered(ctx context.Context) ([]Unanswered, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT question, count, first_seen, last_seen FROM unanswered_questions`)
	if err != nil {
		return nil, fmt.Errorf("list unanswered questions: %w", err)
	}
	defer rows.Close()

	var out []Unanswered
	for rows.Next() {
		var (
			u           Unanswered
			first, last string
		)
		if err := rows.Scan(&u.Question, &u.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("scan unanswered question: %w", err)
		}
		if u.FirstSeen, err = time.Parse(timeLayout, first); err != nil {
			return nil, fmt.Errorf("parse first_seen: %w", err)
		}
		if u.LastSeen, err = time.Parse(timeLayout, last); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortUnanswered(out)
	return out, nil
}
