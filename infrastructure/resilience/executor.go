// Package resilience provides resilient execution patterns using fortify.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// Executor guards calls to a remote dependency with a bulkhead, a timeout,
// a circuit breaker and retries. Only errors accepted by the retryable
// classifier are retried, and only those count as breaker failures.
type Executor[T any] struct {
	bulkhead  bulkhead.Bulkhead[T]
	breaker   circuitbreaker.CircuitBreaker[T]
	retry     retry.Retry[T]
	timeout   time.Duration
	retryable func(error) bool
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent calls.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the total number of attempts, including the first.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds one guarded call, retries included. Zero disables it.
	DefaultTimeout time.Duration

	// Retryable classifies errors. Nil retries everything.
	Retryable func(error) bool
}

// DefaultExecutorConfig returns the defaults used for the database client:
// three retries after the first attempt, starting at 500ms and doubling.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        4,
		RetryInitialDelay:       500 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          0,
	}
}

// errPermanent marks errors the retry loop must give up on immediately.
var errPermanent = errors.New("permanent failure")

type permanent struct{ err error }

func (p permanent) Error() string        { return p.err.Error() }
func (p permanent) Unwrap() error        { return p.err }
func (p permanent) Is(target error) bool { return target == errPermanent }

// NewExecutor creates a new resilient executor.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	attempts := config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	multiplier := config.RetryBackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	return &Executor[T]{
		bulkhead: bulkhead.New[T](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		retry: retry.New[T](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         multiplier,
			NonRetryableErrors: []error{errPermanent},
		}),
		timeout:   config.DefaultTimeout,
		retryable: retryable,
	}
}

// Execute runs fn with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry.
//
// A non-retryable error ends the retry loop at once and is reported to the
// breaker as a success, so caller mistakes such as a bad database name never
// open the circuit.
func (e *Executor[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var callerErr error

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}

		return e.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
			out, err := e.retry.Do(ctx, func(ctx context.Context) (T, error) {
				out, err := fn(ctx)
				if err != nil && !e.retryable(err) {
					return out, permanent{err: err}
				}
				return out, err
			})
			var p permanent
			if errors.As(err, &p) {
				callerErr = p.err
				var zero T
				return zero, nil
			}
			return out, err
		})
	})

	if callerErr != nil {
		var zero T
		return zero, callerErr
	}
	return result, err
}

// ExecuteSimple runs fn without resilience patterns.
func (e *Executor[T]) ExecuteSimple(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return fn(ctx)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor[T]) CircuitBreakerState() circuitbreaker.State {
	return e.breaker.State()
}
