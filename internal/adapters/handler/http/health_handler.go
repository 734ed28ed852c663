package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/vncsmyrnk/awardpoll/internal/resilience"
	"golang.org/x/sync/errgroup"
)

const (
	healthCheckTimeout = 2 * time.Second

	dependencyOK          = "ok"
	dependencyUnavailable = "unavailable"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks   []HealthCheck
	breakers *resilience.Registry
}

func NewHealthHandler(breakers *resilience.Registry, checks ...HealthCheck) *HealthHandler {
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return &HealthHandler{checks: checks, breakers: breakers}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Breakers     map[string]string `json:"breakers,omitempty"`
}

// Healthz always answers while the process is alive. It reports 503 when a
// dependency ping fails so load balancers can drain the instance. Ping errors
// are logged and never echoed to the caller.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	logger := hlog.FromRequest(r)
	resp := healthResponse{Status: "ok", Dependencies: make(map[string]string, len(h.checks))}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checks {
		g.Go(func() error {
			result := dependencyOK
			if err := c.Ping(ctx); err != nil {
				logger.Warn().Err(err).Str("dependency", c.Name).Msg("health check failed")
				result = dependencyUnavailable
			}
			mu.Lock()
			resp.Dependencies[c.Name] = result
			if result != dependencyOK {
				resp.Status = "degraded"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if h.breakers != nil {
		resp.Breakers = make(map[string]string)
		for dep, state := range h.breakers.States() {
			resp.Breakers[string(dep)] = state.String()
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
