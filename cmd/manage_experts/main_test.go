package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/infrastructure/expert"
	"github.com/ahrav/go-trustrag/internal/ports"
)

func TestExecute_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := expert.NewMemoryStore(expert.Matcher{})

	var out strings.Builder
	require.NoError(t, execute(ctx, store, []string{
		"add", "-question", "What is your return policy?", "-answer", "Returns are accepted within 30 days.",
	}, &out))
	require.True(t, strings.HasPrefix(out.String(), "added "))
	id := strings.TrimSpace(strings.TrimPrefix(out.String(), "added "))

	out.Reset()
	require.NoError(t, execute(ctx, store, []string{"list"}, &out))
	assert.Contains(t, out.String(), "QUESTION")
	assert.Contains(t, out.String(), id)
	assert.Contains(t, out.String(), "What is your return policy?")

	out.Reset()
	require.NoError(t, execute(ctx, store, []string{"delete", id}, &out))
	assert.Equal(t, "deleted "+id+"\n", out.String())

	err := execute(ctx, store, []string{"delete", id}, &out)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestExecute_Unanswered(t *testing.T) {
	ctx := context.Background()
	store := expert.NewMemoryStore(expert.Matcher{})
	require.NoError(t, store.RecordUnanswered(ctx, "Can I pay with crypto?"))
	require.NoError(t, store.RecordUnanswered(ctx, "can i pay with crypto?"))

	var out strings.Builder
	require.NoError(t, execute(ctx, store, []string{"unanswered"}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2 "), "count column: %q", lines[1])
	assert.Contains(t, lines[1], "Can I pay with crypto?")
}

func TestExecute_Usage(t *testing.T) {
	ctx := context.Background()
	store := expert.NewMemoryStore(expert.Matcher{})

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no command", args: nil, wantErr: "usage"},
		{name: "unknown command", args: []string{"purge"}, wantErr: `unknown command "purge"`},
		{name: "add without answer", args: []string{"add", "-question", "q"}, wantErr: "requires -question and -answer"},
		{name: "add bad flag", args: []string{"add", "-bogus"}, wantErr: "bogus"},
		{name: "delete without id", args: []string{"delete"}, wantErr: "exactly one id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			err := execute(ctx, store, tt.args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\tc "))
	long := strings.Repeat("x", 100)
	assert.Len(t, oneLine(long), 80)
	assert.True(t, strings.HasSuffix(oneLine(long), "..."))
}
