package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

var errBoom = errors.New("connection refused")

func testSettings() Settings {
	return Settings{
		FailureThreshold: 3,
		ResetTimeout:     50 * time.Millisecond,
		Expected:         []func(error) bool{IsDomainError, IsCanceled},
	}
}

func failing(context.Context) (int, error) { return 0, errBoom }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(DurableStore, testSettings(), nil)

	for i := 0; i < 3; i++ {
		_, err := Execute(ctx, b, failing, nil)
		require.Error(t, err)
		assert.Equal(t, domain.CodeStoreUnavailable, domain.CodeOf(err))
	}
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	_, err := Execute(ctx, b, func(context.Context) (int, error) {
		calls++
		return 1, nil
	}, nil)
	require.Error(t, err)
	assert.Zero(t, calls, "open breaker must not call the dependency")

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.CodeServiceUnavailable, derr.Code)
	assert.Equal(t, 50*time.Millisecond, derr.RetryAfter)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(CounterCache, testSettings(), nil)

	for i := 0; i < 2; i++ {
		_, _ = Execute(ctx, b, failing, nil)
	}
	_, err := Execute(ctx, b, func(context.Context) (int, error) { return 1, nil }, nil)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = Execute(ctx, b, failing, nil)
		assert.Equal(t, domain.CodeCacheUnavailable, domain.CodeOf(err))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerExpectedErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(DurableStore, testSettings(), nil)

	for i := 0; i < 10; i++ {
		_, err := Execute(ctx, b, func(context.Context) (int, error) {
			return 0, domain.ErrAlreadyVoted
		}, nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	}
	for i := 0; i < 10; i++ {
		_, err := Execute(ctx, b, func(context.Context) (int, error) {
			return 0, context.Canceled
		}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("success closes", func(t *testing.T) {
		b := NewBreaker(ObjectStore, testSettings(), nil)
		for i := 0; i < 3; i++ {
			_, _ = Execute(ctx, b, failing, nil)
		}
		require.Equal(t, StateOpen, b.State())

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, b.State())

		v, err := Execute(ctx, b, func(context.Context) (int, error) { return 7, nil }, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		b := NewBreaker(ObjectStore, testSettings(), nil)
		for i := 0; i < 3; i++ {
			_, _ = Execute(ctx, b, failing, nil)
		}
		time.Sleep(60 * time.Millisecond)

		_, err := Execute(ctx, b, failing, nil)
		assert.Equal(t, domain.CodeServiceUnavailable, domain.CodeOf(err))
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("single trial call admitted", func(t *testing.T) {
		b := NewBreaker(DurableStore, testSettings(), nil)
		for i := 0; i < 3; i++ {
			_, _ = Execute(ctx, b, failing, nil)
		}
		time.Sleep(60 * time.Millisecond)

		release := make(chan struct{})
		started := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Execute(ctx, b, func(context.Context) (int, error) {
				close(started)
				<-release
				return 1, nil
			}, nil)
		}()
		<-started

		_, err := Execute(ctx, b, func(context.Context) (int, error) { return 2, nil }, nil)
		assert.Equal(t, domain.CodeServiceUnavailable, domain.CodeOf(err))

		close(release)
		wg.Wait()
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerFallbackWhenOpen(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(DurableStore, testSettings(), nil)
	for i := 0; i < 3; i++ {
		_, _ = Execute(ctx, b, failing, nil)
	}

	v, err := Execute(ctx, b, failing, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBreakerCallTimeout(t *testing.T) {
	st := testSettings()
	st.CallTimeout = 10 * time.Millisecond
	b := NewBreaker(Authenticator, st, nil)

	_, err := Execute(context.Background(), b, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeServiceUnavailable, domain.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry(t *testing.T) {
	var mu sync.Mutex
	observed := map[Dependency]State{}
	r := NewRegistry(testSettings(), zerolog.Nop(), func(dep Dependency, s State) {
		mu.Lock()
		defer mu.Unlock()
		observed[dep] = s
	})

	states := r.States()
	assert.Len(t, states, len(Dependencies))
	for _, dep := range Dependencies {
		assert.Equal(t, StateClosed, states[dep])
	}

	b := r.Breaker(CredentialStore)
	for i := 0; i < 3; i++ {
		_ = Run(context.Background(), b, func(context.Context) error { return errBoom })
	}
	mu.Lock()
	assert.Equal(t, StateOpen, observed[CredentialStore])
	mu.Unlock()
	assert.Equal(t, StateOpen, r.States()[CredentialStore])

	auth := r.Breaker(Authenticator)
	for i := 0; i < 5; i++ {
		err := Run(context.Background(), auth, func(context.Context) error {
			return domain.ErrAuthenticatorCancelled
		})
		assert.ErrorIs(t, err, domain.ErrAuthenticatorCancelled)
	}
	assert.Equal(t, StateClosed, auth.State())

	assert.Panics(t, func() { r.Breaker(Dependency("unknown")) })
}

func TestLastKnownGood(t *testing.T) {
	lkg, err := NewLastKnownGood[string, int](2)
	require.NoError(t, err)

	lkg.Remember("a", 1)
	lkg.Remember("b", 2)
	lkg.Remember("a", 3)
	lkg.Remember("c", 4)

	v, ok := lkg.Recall("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = lkg.Recall("b")
	assert.False(t, ok, "least recently used entry is evicted")

	lkg.Forget("a")
	_, ok = lkg.Recall("a")
	assert.False(t, ok)
}
