package expert

import (
	"context"
	"time"

	"github.com/ahrav/go-trustrag/internal/ports"
)

// Entry is an expert-curated answer to a question.
type Entry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Unanswered is a question that received a bad response while no expert
// answer existed for it.
type Unanswered struct {
	Question  string    `json:"question"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is the full expert-answer management surface. The evaluation path
// only needs the ports.ExpertAnswerStore subset.
type Store interface {
	ports.ExpertAnswerStore

	// Add stores an answer. An existing entry for the same normalized
	// question is replaced, and the question is removed from the
	// unanswered log.
	Add(ctx context.Context, question, answer string) (Entry, error)

	// Delete removes an entry by id and returns ports.ErrNotFound when it
	// does not exist.
	Delete(ctx context.Context, id string) error

	// List returns all entries, oldest first.
	List(ctx context.Context) ([]Entry, error)

	// ListUnanswered returns logged questions, most frequent first.
	ListUnanswered(ctx context.Context) ([]Unanswered, error)

	Close() error
}
