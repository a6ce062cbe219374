package shell

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// recordingService answers from a fixed map and remembers the questions.
type recordingService struct {
	mu        sync.Mutex
	questions []string
	answers   map[string]domain.Response
	err       error
}

func (s *recordingService) Query(_ context.Context, question string) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, question)
	if s.err != nil {
		return domain.Response{}, s.err
	}
	if resp, ok := s.answers[question]; ok {
		return resp, nil
	}
	return domain.Response{Response: "default answer", Evals: []domain.EvalResult{}}, nil
}

func (s *recordingService) asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.questions...)
}

func TestConsole_Run(t *testing.T) {
	svc := &recordingService{answers: map[string]domain.Response{
		"What is your return policy?": {Response: "30 days.", Evals: []domain.EvalResult{}},
	}}
	var out strings.Builder

	console, err := NewConsole(svc, strings.NewReader("What is your return policy?\n  second  \n\nnever asked\n"), &out)
	require.NoError(t, err)
	require.NoError(t, console.Run(context.Background()))

	assert.Equal(t, []string{"What is your return policy?", "second"}, svc.asked(), "blank line stops the loop")

	got := out.String()
	assert.Contains(t, got, `{'response': "30 days.",`)
	assert.Contains(t, got, `{'response': "default answer",`)
	assert.Equal(t, 3, strings.Count(got, ConsolePrompt))
	assert.Equal(t, 2, strings.Count(got, strings.Repeat("-", 40)))
}

func TestConsole_RunEOF(t *testing.T) {
	svc := &recordingService{}
	var out strings.Builder

	console, err := NewConsole(svc, strings.NewReader("only question"), &out)
	require.NoError(t, err)
	require.NoError(t, console.Run(context.Background()))

	assert.Equal(t, []string{"only question"}, svc.asked())
}

func TestConsole_RunContinuesAfterError(t *testing.T) {
	svc := &recordingService{err: ports.NewStageError(ports.StageGenerate, errors.New("model unavailable"))}
	var out strings.Builder

	console, err := NewConsole(svc, strings.NewReader("first\nsecond\n"), &out)
	require.NoError(t, err)
	require.NoError(t, console.Run(context.Background()))

	assert.Equal(t, []string{"first", "second"}, svc.asked())
	assert.Equal(t, 2, strings.Count(out.String(), "model unavailable"))
}

func TestConsole_RunWhitespaceLineContinues(t *testing.T) {
	svc := &recordingService{}
	var out strings.Builder

	console, err := NewConsole(svc, strings.NewReader("   \nnext\n\n"), &out)
	require.NoError(t, err)
	require.NoError(t, console.Run(context.Background()))

	assert.Equal(t, []string{"", "next"}, svc.asked())
	assert.Equal(t, 3, strings.Count(out.String(), ConsolePrompt))
}

func TestConsole_RunCanceled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	svc := &recordingService{}
	var out strings.Builder
	console, err := NewConsole(svc, pr, &out)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- console.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop after cancellation")
	}
	assert.Empty(t, svc.asked())
}

func TestConsole_RunWriteError(t *testing.T) {
	console, err := NewConsole(&recordingService{}, strings.NewReader("q\n"), failingWriter{})
	require.NoError(t, err)
	assert.Error(t, console.Run(context.Background()))
}

func TestNewConsole_Validation(t *testing.T) {
	_, err := NewConsole(nil, strings.NewReader(""), io.Discard)
	assert.Error(t, err)

	_, err = NewConsole(&recordingService{}, nil, io.Discard)
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
