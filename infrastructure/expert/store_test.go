package expert

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/ports"
)

type storeFactory struct {
	name string
	open func(t *testing.T, now func() time.Time) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(_ *testing.T, now func() time.Time) Store {
				s := NewMemoryStore(Matcher{})
				s.now = now
				return s
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T, now func() time.Time) Store {
				s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "experts.db"), Matcher{})
				require.NoError(t, err)
				s.now = now
				t.Cleanup(func() { s.Close() })
				return s
			},
		},
	}
}

// tickingClock advances one second per call so ordering is deterministic.
func tickingClock() func() time.Time {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestStore_AddAndLookup(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t, tickingClock())

			entry, err := store.Add(ctx, "What is your return policy?", "Returns accepted within 30 days.")
			require.NoError(t, err)
			assert.NotEmpty(t, entry.ID)

			answer, ok, err := store.Lookup(ctx, "what is your return policy")
			require.NoError(t, err)
			assert.True(t, ok, "normalized question should match exactly")
			assert.Equal(t, "Returns accepted within 30 days.", answer)

			answer, ok, err = store.Lookup(ctx, "What is your returns policy?")
			require.NoError(t, err)
			assert.True(t, ok, "near duplicate should match fuzzily")
			assert.Equal(t, "Returns accepted within 30 days.", answer)

			_, ok, err = store.Lookup(ctx, "Can I pay with crypto?")
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = store.Lookup(ctx, "   ")
			require.NoError(t, err)
			assert.False(t, ok, "blank question never matches")
		})
	}
}

func TestStore_AddReplacesSameQuestion(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t, tickingClock())

			_, err := store.Add(ctx, "Do you ship abroad?", "No")
			require.NoError(t, err)
			_, err = store.Add(ctx, "do you ship ABROAD", "Yes, to 40 countries")
			require.NoError(t, err)

			entries, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "Yes, to 40 countries", entries[0].Answer)
		})
	}
}

func TestStore_AddValidation(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t, tickingClock())

			_, err := store.Add(context.Background(), "?", "answer")
			assert.Error(t, err)
			_, err = store.Add(context.Background(), "question", " ")
			assert.Error(t, err)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t, tickingClock())

			first, err := store.Add(ctx, "first question", "a")
			require.NoError(t, err)
			_, err = store.Add(ctx, "second question", "b")
			require.NoError(t, err)

			require.NoError(t, store.Delete(ctx, first.ID))
			assert.ErrorIs(t, store.Delete(ctx, first.ID), ports.ErrNotFound)

			entries, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "second question", entries[0].Question)
		})
	}
}

func TestStore_Unanswered(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t, tickingClock())

			require.NoError(t, store.RecordUnanswered(ctx, "How do I cancel?"))
			require.NoError(t, store.RecordUnanswered(ctx, "Where is my order?"))
			require.NoError(t, store.RecordUnanswered(ctx, "where is my order"))
			require.NoError(t, store.RecordUnanswered(ctx, ""))

			unanswered, err := store.ListUnanswered(ctx)
			require.NoError(t, err)
			require.Len(t, unanswered, 2)
			assert.Equal(t, "Where is my order?", unanswered[0].Question, "most frequent first")
			assert.Equal(t, 2, unanswered[0].Count)
			assert.True(t, unanswered[0].LastSeen.After(unanswered[0].FirstSeen))
			assert.Equal(t, 1, unanswered[1].Count)

			// Answering a question removes it from the log.
			_, err = store.Add(ctx, "Where is my order", "Check the tracking link in your email.")
			require.NoError(t, err)

			unanswered, err = store.ListUnanswered(ctx)
			require.NoError(t, err)
			require.Len(t, unanswered, 1)
			assert.Equal(t, "How do I cancel?", unanswered[0].Question)
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "experts.db")

	store, err := NewSQLiteStore(path, Matcher{})
	require.NoError(t, err)
	_, err = store.Add(ctx, "What are your hours?", "9 to 5")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, Matcher{})
	require.NoError(t, err)
	defer reopened.Close()

	answer, ok, err := reopened.Lookup(ctx, "what are your hours")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "9 to 5", answer)
}
