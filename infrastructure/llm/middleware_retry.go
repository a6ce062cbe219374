package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ahrav/go-trustrag/internal/ports"
)

type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient failures up to maxRetries times with
// jittered exponential backoff between baseDelay and maxDelay. Failures
// that cannot succeed on retry, such as authentication errors, an open
// circuit, or a cancelled context, are returned immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return "", 0, 0, err
		}
		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.calculateDelay(attempt)):
		}
	}

	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// isRetryable treats unclassified errors as transient.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || isContextError(err) {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}

	var le *ports.LLMError
	if errors.As(err, &le) {
		return le.IsRetryable()
	}

	return true
}

func (r *retryLLM) calculateDelay(attempt int) time.Duration {
	attempt = clamp(attempt, 0, 30)
	delay := r.baseDelay * time.Duration(1<<uint(attempt)) // #nosec G115 -- attempt is bounded

	// ±25% jitter.
	// #nosec G404 -- weak RNG is fine for jitter
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4

	return min(delay, r.maxDelay)
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
func (r *retryLLM) Unwrap() CoreLLM   { return r.next }
