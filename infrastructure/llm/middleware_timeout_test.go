package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := TimeoutMiddleware(time.Minute)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	deadline, ok := mock.lastCtx.Deadline()
	require.True(t, ok, "provider should see a deadline")
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestTimeoutMiddleware_KeepsShorterParentDeadline(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := TimeoutMiddleware(time.Hour)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, _, err := wrapped.DoRequest(ctx, "p", nil)
	require.NoError(t, err)

	deadline, _ := mock.lastCtx.Deadline()
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestTimeoutMiddleware_ZeroDisables(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := TimeoutMiddleware(0)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	_, ok := mock.lastCtx.Deadline()
	assert.False(t, ok)
}
