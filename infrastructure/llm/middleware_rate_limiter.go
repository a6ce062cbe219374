package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests with a token bucket of limit requests
// per second and the given burst. All CoreLLMs wrapped by the returned
// middleware share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

// DoRequest blocks until the bucket has a token or ctx ends.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

func (r *rateLimitedLLM) GetModel() string  { return r.next.GetModel() }
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
func (r *rateLimitedLLM) Unwrap() CoreLLM   { return r.next }
