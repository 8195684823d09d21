package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/findosh/fintrack/internal/services/ratelimit"
	"golang.org/x/time/rate"
)

// RateLimit applies a fixed-window policy per client IP
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := policy.Identifier(ClientIP(r, trustProxy))
			res := limiter.Check(r.Context(), id, policy.Max, policy.Window)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(policy.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retry := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":   policy.Message,
					"resetAt": res.ResetAt.UTC(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const globalLimiterTTL = 30 * time.Minute

type bucket struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// GlobalLimiter is a coarse per-IP token bucket in front of every route
type GlobalLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rps        rate.Limit
	burst      int
	trustProxy bool
}

// NewGlobalLimiter creates a limiter allowing rps requests per second with
// the given burst for each client IP.
func NewGlobalLimiter(rps float64, burst int, trustProxy bool) *GlobalLimiter {
	return &GlobalLimiter{
		buckets:    make(map[string]*bucket),
		rps:        rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
	}
}

func (g *GlobalLimiter) get(ip string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(g.rps, g.burst)}
		g.buckets[ip] = b
	}
	b.lastUse = time.Now()
	return b.limiter
}

// Sweep drops buckets idle for longer than the TTL and returns how many
// were removed.
func (g *GlobalLimiter) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-globalLimiterTTL)
	n := 0
	for ip, b := range g.buckets {
		if b.lastUse.Before(cutoff) {
			delete(g.buckets, ip)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every interval until ctx is done
func (g *GlobalLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

// Middleware rejects clients that exceed their bucket
func (g *GlobalLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.get(ClientIP(r, g.trustProxy)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
