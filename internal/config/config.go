package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type BiometricEnforcement string

const (
	BiometricRequired BiometricEnforcement = "required"
	BiometricDisabled BiometricEnforcement = "disabled"
)

type Postgres struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// DSN returns the lib/pq connection string.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	// TallyTTL is refreshed on every counter-cache write.
	TallyTTL time.Duration
}

type Tokens struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Breakers struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	CallTimeout      time.Duration
}

type RateLimits struct {
	AuthPerMinute int
	VotePerMinute int
	ReadPerMinute int
	AdminOrigins  []*net.IPNet
}

type S3 struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	URLTTL    time.Duration
}

type Config struct {
	Addr     string
	Postgres Postgres
	Redis    Redis
	Tokens   Tokens
	Breakers Breakers
	Rate     RateLimits
	S3       S3

	GoogleClientID   string
	AuthRedirectURL  string
	CookieSameSite   http.SameSite
	AuthenticatorURL string

	OriginHashSalt   []byte
	FailedAuthLimit  int64
	FailedAuthWindow time.Duration

	Biometric              BiometricEnforcement
	RequireVoteIdempotency bool
	IdempotencyTTL         time.Duration
	IdempotencyPendingTTL  time.Duration
	RequestTimeout         time.Duration
	ReconcileInterval      time.Duration
	LastKnownGoodSize      int
	LogLevel               string
	LogJSON                bool
}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv(files ...string) (loaded bool) {
	return godotenv.Load(files...) == nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

// LoadPostgres reads only the durable store settings. Maintenance commands
// use it so they do not require the server secrets.
func LoadPostgres() Postgres {
	e := env{getenv: os.Getenv}
	return e.postgres()
}

// LoadRedis reads only the cache settings.
func LoadRedis() Redis {
	e := env{getenv: os.Getenv}
	return e.redis()
}

func load(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Addr:     e.str("HTTP_ADDR", "0.0.0.0:8080"),
		Postgres: e.postgres(),
		Redis:    e.redis(),
		Tokens: Tokens{
			AccessSecret:  []byte(e.str("JWT_ACCESS_SECRET", "")),
			RefreshSecret: []byte(e.str("JWT_REFRESH_SECRET", "")),
			Issuer:        e.str("JWT_ISSUER", "awardpoll"),
			Audience:      e.str("JWT_AUDIENCE", "awardpoll-api"),
			AccessTTL:     e.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:    e.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Breakers: Breakers{
			FailureThreshold: uint32(e.integer("BREAKER_FAILURE_THRESHOLD", 5)),
			ResetTimeout:     e.duration("BREAKER_RESET_TIMEOUT", 30*time.Second),
			CallTimeout:      e.duration("BREAKER_CALL_TIMEOUT", 5*time.Second),
		},
		Rate: RateLimits{
			AuthPerMinute: e.integer("RATE_AUTH_PER_MIN", 10),
			VotePerMinute: e.integer("RATE_VOTE_PER_MIN", 30),
			ReadPerMinute: e.integer("RATE_READ_PER_MIN", 300),
			AdminOrigins:  e.cidrs("ADMIN_ORIGINS"),
		},
		S3: S3{
			Bucket:    e.str("S3_BUCKET", ""),
			Region:    e.str("S3_REGION", "us-east-1"),
			Endpoint:  e.str("S3_ENDPOINT", ""),
			AccessKey: e.str("S3_ACCESS_KEY", ""),
			SecretKey: e.str("S3_SECRET_KEY", ""),
			URLTTL:    e.duration("MEDIA_URL_TTL", 10*time.Minute),
		},
		GoogleClientID:         e.str("GOOGLE_CLIENT_ID", ""),
		AuthRedirectURL:        e.str("AUTH_REDIRECT_URL", "/"),
		CookieSameSite:         e.sameSite("COOKIE_SAMESITE"),
		AuthenticatorURL:       e.str("AUTHENTICATOR_URL", ""),
		OriginHashSalt:         []byte(e.str("ORIGIN_HASH_SALT", "")),
		FailedAuthLimit:        int64(e.integer("FAILED_AUTH_LIMIT", 10)),
		FailedAuthWindow:       e.duration("FAILED_AUTH_WINDOW", 15*time.Minute),
		Biometric:              BiometricEnforcement(strings.ToLower(e.str("BIOMETRIC_ENFORCEMENT", string(BiometricRequired)))),
		RequireVoteIdempotency: e.boolean("REQUIRE_VOTE_IDEMPOTENCY_KEY", false),
		IdempotencyTTL:         e.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPendingTTL:  e.duration("IDEMPOTENCY_PENDING_TTL", 2*time.Minute),
		RequestTimeout:         e.duration("REQUEST_TIMEOUT", 30*time.Second),
		ReconcileInterval:      e.duration("RECONCILE_INTERVAL", 5*time.Minute),
		LastKnownGoodSize:      e.integer("LAST_KNOWN_GOOD_SIZE", 256),
		LogLevel:               e.str("LOG_LEVEL", "info"),
		LogJSON:                e.boolean("LOG_FORMAT_JSON", false),
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if len(c.Tokens.AccessSecret) == 0 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	}
	if len(c.Tokens.RefreshSecret) == 0 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if len(c.Tokens.AccessSecret) > 0 && string(c.Tokens.AccessSecret) == string(c.Tokens.RefreshSecret) {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if len(c.OriginHashSalt) == 0 {
		errs = append(errs, errors.New("ORIGIN_HASH_SALT is required"))
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Tokens.AccessTTL > c.Tokens.RefreshTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must not exceed REFRESH_TOKEN_TTL"))
	}
	switch c.Biometric {
	case BiometricRequired, BiometricDisabled:
	default:
		errs = append(errs, fmt.Errorf("BIOMETRIC_ENFORCEMENT must be %q or %q", BiometricRequired, BiometricDisabled))
	}
	return errs
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) postgres() Postgres {
	return Postgres{
		Host:     e.str("POSTGRES_HOST", "localhost"),
		Port:     e.str("POSTGRES_PORT", "5432"),
		User:     e.str("POSTGRES_USER", ""),
		Password: e.str("POSTGRES_PASSWORD", ""),
		DB:       e.str("POSTGRES_DB", ""),
		SSLMode:  e.str("POSTGRES_SSLMODE", "disable"),
	}
}

func (e *env) redis() Redis {
	return Redis{
		Addr:     e.str("REDIS_ADDR", "localhost:6379"),
		Password: e.str("REDIS_PASSWORD", ""),
		DB:       e.integer("REDIS_DB", 0),
		TallyTTL: e.duration("TALLY_CACHE_TTL", 7*24*time.Hour),
	}
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid non-negative integer %q", key, v))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) cidrs(key string) []*net.IPNet {
	var nets []*net.IPNet
	for _, part := range strings.Split(e.getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil && ip.To4() != nil {
				part += "/32"
			} else {
				part += "/128"
			}
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: invalid CIDR %q", key, part))
			continue
		}
		nets = append(nets, n)
	}
	return nets
}

func (e *env) sameSite(key string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(e.getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
