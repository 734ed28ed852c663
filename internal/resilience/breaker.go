package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// Dependency names an external dependency class guarded by one breaker.
type Dependency string

const (
	DurableStore     Dependency = "durable_store"
	CounterCache     Dependency = "counter_cache"
	CredentialStore  Dependency = "credential_store"
	ObjectStore      Dependency = "object_store"
	Authenticator    Dependency = "authenticator"
	IdentityProvider Dependency = "identity_provider"
)

// Dependencies lists every guarded dependency class.
var Dependencies = []Dependency{DurableStore, CounterCache, CredentialStore, ObjectStore, Authenticator, IdentityProvider}

// failureCode is the code surfaced when a call to the dependency fails
// while its breaker still admits traffic.
func (d Dependency) failureCode() domain.Code {
	switch d {
	case DurableStore:
		return domain.CodeStoreUnavailable
	case CounterCache, CredentialStore:
		return domain.CodeCacheUnavailable
	default:
		return domain.CodeServiceUnavailable
	}
}

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Settings configures one breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive unexpected failures that
	// opens the breaker.
	FailureThreshold uint32
	// ResetTimeout is how long the breaker stays open before admitting a
	// trial call. It is also the retry hint handed to callers.
	ResetTimeout time.Duration
	// CallTimeout bounds every protected call on top of the caller's deadline.
	// Zero leaves the caller's deadline alone.
	CallTimeout time.Duration
	// Expected errors are returned to the caller untouched and never count
	// as failures.
	Expected []func(error) bool
}

// IsDomainError matches failures from the closed taxonomy: validation, not
// found, conflicts. A dependency answering with one of those is healthy.
func IsDomainError(err error) bool {
	var e *domain.Error
	return errors.As(err, &e)
}

// IsCanceled matches calls abandoned by the caller.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Breaker guards calls to one dependency. It is CLOSED while calls succeed,
// OPEN after FailureThreshold consecutive unexpected failures, and
// HALF_OPEN once ResetTimeout has elapsed, admitting a single trial call that
// either closes or re-opens it.
type Breaker struct {
	dependency Dependency
	settings   Settings
	cb         *gobreaker.CircuitBreaker
}

// NewBreaker builds a breaker for dep. onChange, when set, observes every
// state transition.
func NewBreaker(dep Dependency, st Settings, onChange func(dep Dependency, from, to State)) *Breaker {
	if st.FailureThreshold == 0 {
		st.FailureThreshold = 1
	}
	b := &Breaker{dependency: dep, settings: st}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(dep),
		MaxRequests: 1,
		Timeout:     st.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || b.expected(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(dep, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
	return b
}

func (b *Breaker) Dependency() Dependency { return b.dependency }

func (b *Breaker) State() State { return fromGobreaker(b.cb.State()) }

// RetryAfter is the hint given to callers rejected by this breaker.
func (b *Breaker) RetryAfter() time.Duration { return b.settings.ResetTimeout }

func (b *Breaker) expected(err error) bool {
	for _, match := range b.settings.Expected {
		if match(err) {
			return true
		}
	}
	return false
}

func (b *Breaker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.settings.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.settings.CallTimeout)
}

// Execute runs fn through the breaker.
//
// When the breaker rejects the call (OPEN, or HALF_OPEN with its trial call in
// flight) fallback runs instead if supplied; otherwise the call fails with
// SERVICE_UNAVAILABLE. Unexpected failures of fn surface as the
// dependency's failure code. Both carry the reset timeout as retry hint.
// Expected errors pass through unchanged.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error), fallback func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := b.callContext(ctx)
		defer cancel()
		return fn(callCtx)
	})
	switch {
	case err == nil:
		v, _ := res.(T)
		return v, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		if fallback != nil {
			return fallback(ctx)
		}
		return zero, domain.Unavailable(domain.CodeServiceUnavailable,
			fmt.Sprintf("%s is unavailable", b.dependency), b.RetryAfter(), err)
	case b.expected(err):
		return zero, err
	default:
		return zero, domain.Unavailable(b.dependency.failureCode(),
			fmt.Sprintf("%s call failed", b.dependency), b.RetryAfter(), err)
	}
}

// Run is Execute for calls without a result.
func Run(ctx context.Context, b *Breaker, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}
