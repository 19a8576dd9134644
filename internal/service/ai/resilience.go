package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilienceConfig configures retries and circuit breaking for provider
// calls.
type ResilienceConfig struct {
	RetryAttempts    int
	RetryInitialWait time.Duration
	RetryMaxWait     time.Duration

	CircuitBreakerEnabled   bool
	CircuitBreakerThreshold int           // consecutive failures before opening
	CircuitBreakerTimeout   time.Duration // how long to stay open
}

// DefaultResilienceConfig returns the defaults used by every SDK provider.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RetryAttempts:           3,
		RetryInitialWait:        200 * time.Millisecond,
		RetryMaxWait:            10 * time.Second,
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// Resilience wraps a provider call with Fortify retry and circuit breaking.
type Resilience struct {
	retrier        retry.Retry[string]
	circuitBreaker circuitbreaker.CircuitBreaker[string]
}

// NewResilience creates the wrapper. Zero attempts disables retries.
func NewResilience(cfg ResilienceConfig) *Resilience {
	r := &Resilience{}

	if cfg.RetryAttempts > 0 {
		r.retrier = retry.New[string](retry.Config{
			MaxAttempts:   cfg.RetryAttempts,
			InitialDelay:  cfg.RetryInitialWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableError,
		})
	}

	if cfg.CircuitBreakerEnabled {
		threshold := cfg.CircuitBreakerThreshold
		r.circuitBreaker = circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.CircuitBreakerTimeout,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounded config value
			},
		})
	}

	return r
}

// Execute runs operation through the circuit breaker and retrier.
func (r *Resilience) Execute(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r == nil {
		return operation(ctx)
	}
	if r.circuitBreaker != nil {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return r.executeWithRetry(ctx, operation)
		})
	}
	return r.executeWithRetry(ctx, operation)
}

func (r *Resilience) executeWithRetry(ctx context.Context, operation func(context.Context) (string, error)) (string, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, operation)
	}
	return operation(ctx)
}

// isRetryableError reports whether a provider error is worth retrying.
// Rate limits, 5xx responses and transport failures are; credential and
// request errors are not.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"400", "401", "403", "404", "invalid api key", "unauthorized"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range []string{
		"rate limit", "too many requests", "429",
		"500", "502", "503", "504", "overloaded",
		"connection", "timeout", "temporary", "eof",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
