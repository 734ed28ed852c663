package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/cache/redis"
	handler "github.com/vncsmyrnk/awardpoll/internal/adapters/handler/http"
	repo "github.com/vncsmyrnk/awardpoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/resilient"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/services"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
	"github.com/vncsmyrnk/awardpoll/internal/resilience"
)

type TestApp struct {
	DB         *sql.DB
	Redis      *goredis.Client
	Server     *httptest.Server
	Client     *http.Client
	Reconciler *services.Reconciler

	containers []testcontainers.Container
}

// identityVerifier accepts any credential except "bad" and uses it as the
// identity-provider subject.
type identityVerifier struct{}

func (identityVerifier) Verify(_ context.Context, token, _ string) (*domain.Identity, error) {
	if token == "bad" {
		return nil, domain.NewError(domain.CodeInvalidToken, "rejected")
	}
	return &domain.Identity{Subject: token, Email: token + "@example.com", Name: token}, nil
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}
	return pgContainer, connStr, nil
}

func setupRedisContainer(ctx context.Context) (testcontainers.Container, string, error) {
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, "", fmt.Errorf("failed to start redis container: %w", err)
	}

	connStr, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		return nil, "", err
	}
	return redisContainer, connStr, nil
}

func applyMigrations(db *sql.DB) error {
	dirPath := filepath.Join("..", "..", "internal", "adapters", "repository", "postgres", "migrations")

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}
	return nil
}

func setupTestApp(t *testing.T) *TestApp {
	t.Helper()
	ctx := context.Background()
	app := &TestApp{}

	pgContainer, dbURL, err := setupPostgresContainer(ctx)
	require.NoError(t, err)
	app.containers = append(app.containers, pgContainer)

	redisContainer, redisURL, err := setupRedisContainer(ctx)
	require.NoError(t, err)
	app.containers = append(app.containers, redisContainer)

	app.DB, err = sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, applyMigrations(app.DB))

	opts, err := goredis.ParseURL(redisURL)
	require.NoError(t, err)
	app.Redis = goredis.NewClient(opts)

	log := zerolog.Nop()
	m := metrics.New()
	registry := resilience.NewRegistry(resilience.Settings{
		FailureThreshold: 5,
		ResetTimeout:     time.Second,
		CallTimeout:      5 * time.Second,
	}, log)

	voterRepo := resilient.NewVoterRepository(repo.NewVoterRepository(app.DB), registry)
	contestRepo := resilient.NewContestRepository(repo.NewContestRepository(app.DB), registry)
	voteRepo := resilient.NewVoteRepository(repo.NewVoteRepository(app.DB), registry)
	biasRepo := resilient.NewBiasRepository(repo.NewBiasRepository(app.DB), registry)
	auditRepo := resilient.NewAuditRepository(repo.NewAuditRepository(app.DB), registry)
	tallyStore, err := resilient.NewTallyStore(repo.NewTallyRepository(app.DB), registry, 16, log)
	require.NoError(t, err)

	credentials := resilient.NewCredentialStore(redis.NewCredentialStore(app.Redis), registry)
	tallyCache := resilient.NewTallyCache(redis.NewTallyCache(app.Redis, 24*time.Hour), registry)
	idempotency := resilient.NewIdempotencyStore(redis.NewIdempotencyStore(app.Redis), registry)

	origins := services.NewOriginHasher([]byte("integration-salt"))
	sessions := services.NewSessionService(credentials, auditRepo, services.SessionConfig{
		AccessSecret:  []byte("integration-access-secret-0123456789"),
		RefreshSecret: []byte("integration-refresh-secret-0123456789"),
		Issuer:        "awardpoll",
		Audience:      "awardpoll-web",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}, log, m)
	authService := services.NewAuthService(voterRepo, sessions, identityVerifier{}, credentials, origins, services.AuthConfig{
		GoogleClientID:   "integration-client",
		FailedAuthLimit:  100,
		FailedAuthWindow: time.Minute,
	}, log)
	app.Reconciler = services.NewReconciler(contestRepo, tallyStore, tallyCache, log, m)
	tallyService := services.NewTallyService(contestRepo, tallyStore, tallyCache, log)
	voteService := services.NewVoteService(contestRepo, voteRepo, tallyCache, app.Reconciler, origins, log, m)
	biasService := services.NewBiasService(contestRepo, biasRepo, auditRepo, tallyService, app.Reconciler, log)
	userService := services.NewUserService(voterRepo, auditRepo, log)
	gate := services.NewBiometricGate(voterRepo, nil, false, log)

	router := handler.NewHandler(handler.Handlers{
		Auth:  handler.NewAuthHandler(authService, "/", handler.Cookies{SameSite: http.SameSiteLaxMode}),
		Votes: handler.NewVoteHandler(voteService, gate),
		Tally: handler.NewTallyHandler(tallyService),
		Bias:  handler.NewBiasHandler(biasService),
		Users: handler.NewUserHandler(userService),
		Health: handler.NewHealthHandler(registry,
			handler.HealthCheck{Name: string(resilience.DurableStore), Ping: app.DB.PingContext},
			handler.HealthCheck{Name: string(resilience.CounterCache), Ping: tallyCache.Ping},
			handler.HealthCheck{Name: string(resilience.CredentialStore), Ping: credentials.Ping},
		),
	}, handler.RouterConfig{
		Sessions:    sessions,
		Idempotency: handler.NewIdempotency(idempotency, time.Minute, time.Hour, false),
		Metrics:     m,
		Logger:      log,
	})

	app.Server = httptest.NewServer(router)
	app.Client = app.Server.Client()
	return app
}

func (app *TestApp) Teardown(t *testing.T) {
	app.Server.Close()
	app.DB.Close()
	app.Redis.Close()
	for _, c := range app.containers {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
}

type contestFixture struct {
	ID       uuid.UUID
	Nominees []uuid.UUID
}

// createContest seeds an active contest with open windows and the given
// number of approved nominees.
func (app *TestApp) createContest(t *testing.T, nominees int) contestFixture {
	t.Helper()
	c := contestFixture{ID: uuid.New()}
	_, err := app.DB.Exec(`INSERT INTO contests (id, name, status) VALUES ($1, $2, 'active')`, c.ID, "Contest "+c.ID.String())
	require.NoError(t, err)
	for i := 0; i < nominees; i++ {
		id := uuid.New()
		_, err := app.DB.Exec(
			`INSERT INTO nominees (id, contest_id, name, approval, status) VALUES ($1, $2, $3, 'approved', 'active')`,
			id, c.ID, fmt.Sprintf("Nominee %d", i),
		)
		require.NoError(t, err)
		c.Nominees = append(c.Nominees, id)
	}
	return c
}

// exchange signs a voter in with the given identity-provider subject.
func (app *TestApp) exchange(t *testing.T, subject string) *domain.Session {
	t.Helper()
	resp := app.do(t, http.MethodPost, "/auth/exchange", "", map[string]string{"credential": subject})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session domain.Session
	decode(t, resp, &session)
	return &session
}

func (app *TestApp) rotate(t *testing.T, refreshToken string) *http.Response {
	t.Helper()
	return app.do(t, http.MethodPost, "/auth/rotate", "", map[string]string{"refresh_token": refreshToken})
}

// operator signs a voter in, promotes them in the store and rotates so the
// returned access credential carries the new role.
func (app *TestApp) operator(t *testing.T, subject string) string {
	t.Helper()
	session := app.exchange(t, subject)
	_, err := app.DB.Exec(`UPDATE voters SET role = 'operator' WHERE id = $1`, session.Voter.ID)
	require.NoError(t, err)

	resp := app.rotate(t, session.Tokens.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair domain.TokenPair
	decode(t, resp, &pair)
	return pair.AccessToken
}

func (app *TestApp) vote(t *testing.T, accessToken string, contestID, nomineeID uuid.UUID) *http.Response {
	t.Helper()
	return app.do(t, http.MethodPost, fmt.Sprintf("/api/contests/%s/votes", contestID), accessToken,
		map[string]any{"nominee_id": nomineeID})
}

// tally reads a contest's observable counts keyed by nominee.
func (app *TestApp) tally(t *testing.T, contestID uuid.UUID) map[uuid.UUID]int64 {
	t.Helper()
	resp := app.do(t, http.MethodGet, fmt.Sprintf("/api/contests/%s/tally", contestID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Tally []domain.TallyEntry `json:"tally"`
	}
	decode(t, resp, &body)

	counts := make(map[uuid.UUID]int64, len(body.Tally))
	for _, e := range body.Tally {
		counts[e.NomineeID] = e.Count
	}
	return counts
}

func (app *TestApp) do(t *testing.T, method, path, accessToken string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, app.Server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) domain.Code {
	t.Helper()
	var body struct {
		Code domain.Code `json:"code"`
	}
	decode(t, resp, &body)
	return body.Code
}
