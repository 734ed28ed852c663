package main

import (
	"context"
	"database/sql"
	"errors"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/authenticator"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/cache/redis"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/handler/http"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/oauth/google"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/objectstore/s3"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/resilient"
	"github.com/vncsmyrnk/awardpoll/internal/config"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
	"github.com/vncsmyrnk/awardpoll/internal/core/services"
	"github.com/vncsmyrnk/awardpoll/internal/logger"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
	"github.com/vncsmyrnk/awardpoll/internal/resilience"
)

func main() {
	dotenv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).Fatal().Err(err).Msg("invalid configuration")
	}
	log := *logger.New(cfg.LogLevel, cfg.LogJSON)
	if !dotenv {
		log.Debug().Msg("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	registry := resilience.NewRegistry(resilience.Settings{
		FailureThreshold: cfg.Breakers.FailureThreshold,
		ResetTimeout:     cfg.Breakers.ResetTimeout,
		CallTimeout:      cfg.Breakers.CallTimeout,
	}, log, func(dep resilience.Dependency, state resilience.State) {
		m.SetBreakerState(string(dep), int(state))
	})

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	rdb := redis.NewClient(cfg.Redis)
	defer rdb.Close()

	// Durable store
	voterRepo := resilient.NewVoterRepository(postgres.NewVoterRepository(db), registry)
	contestRepo := resilient.NewContestRepository(postgres.NewContestRepository(db), registry)
	voteRepo := resilient.NewVoteRepository(postgres.NewVoteRepository(db), registry)
	biasRepo := resilient.NewBiasRepository(postgres.NewBiasRepository(db), registry)
	auditRepo := resilient.NewAuditRepository(postgres.NewAuditRepository(db), registry)
	tallyStore, err := resilient.NewTallyStore(postgres.NewTallyRepository(db), registry, cfg.LastKnownGoodSize, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tally store")
	}

	// Caches
	credentials := resilient.NewCredentialStore(redis.NewCredentialStore(rdb), registry)
	tallyCache := resilient.NewTallyCache(redis.NewTallyCache(rdb, cfg.Redis.TallyTTL), registry)
	idempotency := resilient.NewIdempotencyStore(redis.NewIdempotencyStore(rdb), registry)

	// External clients
	tokenVerifier := resilient.NewTokenVerifier(google.NewVerifier(), registry)
	biometricEnforced := cfg.Biometric == config.BiometricRequired
	var assertions ports.AuthenticatorVerifier
	if biometricEnforced {
		client, err := authenticator.NewClient(cfg.AuthenticatorURL, cfg.Breakers.CallTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("biometric enforcement requires AUTHENTICATOR_URL")
		}
		assertions = resilient.NewAuthenticatorVerifier(client, registry)
	} else {
		log.Warn().Msg("biometric enforcement is disabled; votes are recorded as biometric_verified=false")
	}

	// Services
	origins := services.NewOriginHasher(cfg.OriginHashSalt)
	sessions := services.NewSessionService(credentials, auditRepo, services.SessionConfig{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	}, log, m)
	authService := services.NewAuthService(voterRepo, sessions, tokenVerifier, credentials, origins, services.AuthConfig{
		GoogleClientID:   cfg.GoogleClientID,
		FailedAuthLimit:  cfg.FailedAuthLimit,
		FailedAuthWindow: cfg.FailedAuthWindow,
	}, log)
	reconciler := services.NewReconciler(contestRepo, tallyStore, tallyCache, log, m)
	tallyService := services.NewTallyService(contestRepo, tallyStore, tallyCache, log)
	voteService := services.NewVoteService(contestRepo, voteRepo, tallyCache, reconciler, origins, log, m)
	biasService := services.NewBiasService(contestRepo, biasRepo, auditRepo, tallyService, reconciler, log)
	userService := services.NewUserService(voterRepo, auditRepo, log)
	gate := services.NewBiometricGate(voterRepo, assertions, biometricEnforced, log)

	handlers := http.Handlers{
		Auth:  http.NewAuthHandler(authService, cfg.AuthRedirectURL, http.Cookies{SameSite: cfg.CookieSameSite, Secure: true}),
		Votes: http.NewVoteHandler(voteService, gate),
		Tally: http.NewTallyHandler(tallyService),
		Bias:  http.NewBiasHandler(biasService),
		Users: http.NewUserHandler(userService),
		Health: http.NewHealthHandler(registry,
			http.HealthCheck{Name: string(resilience.DurableStore), Ping: db.PingContext},
			http.HealthCheck{Name: string(resilience.CounterCache), Ping: tallyCache.Ping},
			http.HealthCheck{Name: string(resilience.CredentialStore), Ping: credentials.Ping},
		),
	}
	if cfg.S3.Bucket != "" {
		store, err := s3.NewMediaStore(cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build media store")
		}
		media := services.NewMediaService(contestRepo, resilient.NewMediaStore(store, registry), cfg.S3.URLTTL)
		handlers.Media = http.NewMediaHandler(media)
	} else {
		log.Warn().Msg("S3_BUCKET not set; nominee media is disabled")
	}

	handler := http.NewHandler(handlers, http.RouterConfig{
		Sessions:    sessions,
		Idempotency: http.NewIdempotency(idempotency, cfg.IdempotencyPendingTTL, cfg.IdempotencyTTL, cfg.RequireVoteIdempotency),
		Limits: http.RateLimits{
			Auth: http.NewRateLimiter(cfg.Rate.AuthPerMinute, cfg.Rate.AdminOrigins),
			Vote: http.NewRateLimiter(cfg.Rate.VotePerMinute, cfg.Rate.AdminOrigins),
			Read: http.NewRateLimiter(cfg.Rate.ReadPerMinute, cfg.Rate.AdminOrigins),
		},
		Metrics:        m,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	go reconciler.Run(ctx, cfg.ReconcileInterval)
	go resilient.WatchTallyCache(ctx, tallyCache, cfg.Breakers.ResetTimeout, log)

	server := &stdhttp.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
