package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open or probing.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerMetrics observes breaker transitions.
type CircuitBreakerMetrics interface {
	// RecordState is called with the new state ("closed", "open",
	// "half-open") on every transition.
	RecordState(name, state string)
	// RecordTrip is called for each request rejected by an open breaker.
	RecordTrip(name string)
}

type circuitBreakerLLM struct {
	next    CoreLLM
	cb      *gobreaker.CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware opens the circuit after maxFailures consecutive
// failures and lets a single probe through once cooldown has elapsed.
// Client-side errors such as bad requests and cancellations do not count
// as failures.
func CircuitBreakerMiddleware(name string, maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(name, maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware with
// transition reporting. One breaker is shared by every CoreLLM the
// returned middleware wraps.
func CircuitBreakerMiddlewareWithMetrics(name string, maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	if maxFailures < 1 {
		maxFailures = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if metrics != nil {
				metrics.RecordState(name, to.String())
			}
		},
		IsSuccessful: countsAsSuccess,
	})

	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb, metrics: metrics}
	}
}

// countsAsSuccess keeps errors the caller caused from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || isContextError(err) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Type {
		case ErrorTypeBadRequest, ErrorTypeContentPolicy, ErrorTypeNotFound:
			return true
		}
	}
	return false
}

type completion struct {
	text                string
	tokensIn, tokensOut int
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		text, in, out, err := c.next.DoRequest(ctx, prompt, opts)
		return completion{text: text, tokensIn: in, tokensOut: out}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if c.metrics != nil {
			c.metrics.RecordTrip(c.cb.Name())
		}
		return "", 0, 0, fmt.Errorf("%s: %w", c.cb.Name(), ErrCircuitOpen)
	}
	if err != nil {
		return "", 0, 0, err
	}

	out := res.(completion)
	return out.text, out.tokensIn, out.tokensOut, nil
}

// State reports the breaker state as "closed", "open", or "half-open".
func (c *circuitBreakerLLM) State() string { return c.cb.State().String() }

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
func (c *circuitBreakerLLM) Unwrap() CoreLLM   { return c.next }
