package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"golang.org/x/time/rate"
)

const visitorIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per origin. Origins inside an exempt
// network are never limited.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	exempt    []*net.IPNet
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per origin with a burst of the
// same size. A zero perMinute disables the limiter.
func NewRateLimiter(perMinute int, exempt []*net.IPNet) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		exempt:   exempt,
		now:      time.Now,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.burst == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := clientIP(r)
		if wait := l.reserve(origin); wait > 0 {
			writeError(w, r, &domain.Error{
				Code:       domain.CodeRateLimited,
				Message:    domain.ErrRateLimited.Message,
				RetryAfter: wait,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reserve takes a token for origin and returns how long the caller must
// wait when none is available.
func (l *RateLimiter) reserve(origin string) time.Duration {
	if l.isExempt(origin) {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorIdle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[origin]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[origin] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

func (l *RateLimiter) isExempt(origin string) bool {
	ip := net.ParseIP(origin)
	if ip == nil {
		return false
	}
	for _, n := range l.exempt {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
