package expert

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps expert answers in process memory. It backs tests and
// single-process demos where answers need not survive a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	matcher    Matcher
	entries    []Entry
	unanswered map[string]*Unanswered
	now        func() time.Time
}

// NewMemoryStore returns an empty store using matcher for lookups.
func NewMemoryStore(matcher Matcher) *MemoryStore {
	return &MemoryStore{
		matcher:    matcher,
		unanswered: make(map[string]*Unanswered),
		now:        time.Now,
	}
}

// Lookup returns the answer of the closest stored question.
func (m *MemoryStore) Lookup(_ context.Context, question string) (string, bool, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return "", false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, _, ok := m.matcher.Best(normalized, m.entries)
	if !ok {
		return "", false, nil
	}
	return entry.Answer, true, nil
}

// RecordUnanswered increments the counter for question.
func (m *MemoryStore) RecordUnanswered(_ context.Context, question string) error {
	normalized := Normalize(question)
	if normalized == "" {
		return nil
	}
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.unanswered[normalized]; ok {
		u.Count++
		u.LastSeen = now
		return nil
	}
	m.unanswered[normalized] = &Unanswered{
		Question:  strings.TrimSpace(question),
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	return nil
}

// Add stores or replaces the answer for question.
func (m *MemoryStore) Add(_ context.Context, question, answer string) (Entry, error) {
	normalized, err := checkEntry(question, answer)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Question:  strings.TrimSpace(question),
		Answer:    strings.TrimSpace(answer),
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = slices.DeleteFunc(m.entries, func(e Entry) bool { return Normalize(e.Question) == normalized })
	m.entries = append(m.entries, entry)
	delete(m.unanswered, normalized)
	return entry, nil
}

// Delete removes the entry with id.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.entries)
	m.entries = slices.DeleteFunc(m.entries, func(e Entry) bool { return e.ID == id })
	if len(m.entries) == before {
		return fmt.Errorf("expert answer %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// List returns all entries, oldest first.
func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...), nil
}

// ListUnanswered returns logged questions, most frequent first.
func (m *MemoryStore) ListUnanswered(context.Context) ([]Unanswered, error) {
	m.mu.RLock()
	out := make([]Unanswered, 0, len(m.unanswered))
	for _, u := range m.unanswered {
		out = append(out, *u)
	}
	m.mu.RUnlock()

	sortUnanswered(out)
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var (
	errEmptyQuestion = errors.New("question cannot be empty")
	errEmptyAnswer   = errors.New("answer cannot be empty")
)

func checkEntry(question, answer string) (string, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return "", errEmptyQuestion
	}
	if strings.TrimSpace(answer) == "" {
		return "", errEmptyAnswer
	}
	return normalized, nil
}

func sortUnanswered(u []Unanswered) {
	sort.SliceStable(u, func(i, j int) bool {
		if u[i].Count != u[j].Count {
			return u[i].Count > u[j].Count
		}
		return u[i].LastSeen.After(u[j].LastSeen)
	})
}
