package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type contextKey string

const CallerKey contextKey = "caller"

// accessToken reads the bearer credential. The Authorization header wins
// over the cookie.
func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate admits requests carrying a valid access credential and
// stores the verified payload in the request context.
func Authenticate(sessions ports.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				writeError(w, r, domain.ErrNoToken)
				return
			}
			payload, err := sessions.VerifyAccess(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("voter_id", payload.VoterID.String())
			})
			ctx := context.WithValue(r.Context(), CallerKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers ranked below min. It must run after
// Authenticate.
func RequireRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := callerFrom(r)
			if !ok {
				writeError(w, r, domain.ErrNoToken)
				return
			}
			if !caller.Role.AtLeast(min) {
				writeError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerFrom(r *http.Request) (domain.Caller, bool) {
	payload, ok := r.Context().Value(CallerKey).(*domain.AccessPayload)
	if !ok {
		return domain.Caller{}, false
	}
	return payload.Caller(), true
}
