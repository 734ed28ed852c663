package resilience

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
)

// Registry owns one Breaker per dependency class. It is built once at
// process start and handed to the adapters that need it.
type Registry struct {
	breakers map[Dependency]*Breaker
}

// StateObserver is notified of every breaker transition.
type StateObserver func(dep Dependency, state State)

// NewRegistry builds breakers for every dependency from defaults. Domain
// failures and caller cancellation are expected for every dependency; a
// dismissed authenticator prompt is expected for the authenticator.
func NewRegistry(defaults Settings, logger zerolog.Logger, observers ...StateObserver) *Registry {
	r := &Registry{breakers: make(map[Dependency]*Breaker, len(Dependencies))}

	onChange := func(dep Dependency, from, to State) {
		ev := logger.Warn()
		if to == StateClosed {
			ev = logger.Info()
		}
		ev.Str("dependency", string(dep)).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
		for _, observe := range observers {
			observe(dep, to)
		}
	}

	for _, dep := range Dependencies {
		st := defaults
		st.Expected = append([]func(error) bool{IsDomainError, IsCanceled}, defaults.Expected...)
		if dep == Authenticator {
			st.Expected = append(st.Expected, func(err error) bool {
				return errors.Is(err, domain.ErrAuthenticatorCancelled)
			})
		}
		r.breakers[dep] = NewBreaker(dep, st, onChange)
	}
	for _, observe := range observers {
		for dep := range r.breakers {
			observe(dep, StateClosed)
		}
	}
	return r
}

// Breaker returns the breaker of dep. It panics for dependencies the
// registry was not built with.
func (r *Registry) Breaker(dep Dependency) *Breaker {
	b, ok := r.breakers[dep]
	if !ok {
		panic("resilience: no breaker for " + string(dep))
	}
	return b
}

// States reports the current state of every breaker.
func (r *Registry) States() map[Dependency]State {
	states := make(map[Dependency]State, len(r.breakers))
	for dep, b := range r.breakers {
		states[dep] = b.State()
	}
	return states
}
