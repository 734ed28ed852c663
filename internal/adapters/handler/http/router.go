package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
)

type Handlers struct {
	Auth   *AuthHandler
	Votes  *VoteHandler
	Tally  *TallyHandler
	Bias   *BiasHandler
	Users  *UserHandler
	Media  *MediaHandler
	Health *HealthHandler
}

// RateLimits groups the per-tier limiters. Nil limiters admit everything.
type RateLimits struct {
	Auth *RateLimiter
	Vote *RateLimiter
	Read *RateLimiter
}

type RouterConfig struct {
	Sessions       ports.SessionService
	Idempotency    *Idempotency
	Limits         RateLimits
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

func NewHandler(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Count)

	r.Get("/healthz", h.Health.Healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	authenticate := Authenticate(cfg.Sessions)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Route("/auth", func(r chi.Router) {
			r.Use(cfg.Limits.Auth.Middleware)
			r.Post("/exchange", h.Auth.Exchange)
			r.Post("/rotate", h.Auth.Rotate)
			r.Post("/revoke", h.Auth.Revoke)
		})

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(cfg.Limits.Read.Middleware)
				r.Get("/results", h.Tally.ListResults)
				r.Get("/contests/{contestID}/tally", h.Tally.GetTally)
				if h.Media != nil {
					r.Get("/contests/{contestID}/nominees/{nomineeID}/media", h.Media.NomineeMedia)
				}

				r.With(authenticate).Get("/me", h.Users.GetMe)
				r.With(authenticate).Get("/contests/{contestID}/votes/me", h.Votes.CheckVoted)
			})

			r.Group(func(r chi.Router) {
				r.Use(cfg.Limits.Vote.Middleware)
				r.Use(authenticate)

				r.With(RequireRole(domain.RoleBasic), cfg.Idempotency.Middleware).
					Post("/contests/{contestID}/votes", h.Votes.SubmitVote)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(domain.RoleOperator))
					r.Post("/contests/{contestID}/biases", h.Bias.ApplyBias)
					r.Post("/biases/{biasID}/deactivate", h.Bias.DeactivateBias)
					r.Patch("/voters/{voterID}/role", h.Users.UpdateRole)
				})
			})
		})
	})

	return r
}
