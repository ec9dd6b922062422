package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterMaxClients = 10000
)

// RateLimitMiddleware enforces a per-client token bucket. Paths in
// skipPaths bypass it. X-Forwarded-For is only honoured when trustProxy
// is set. Rejected requests carry a Retry-After hint.
func RateLimitMiddleware(rps float64, burst int, trustProxy bool, skipPaths []string) Middleware {
	limits := newClientLimits(rate.Limit(rps), burst)
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !skip[r.URL.Path] {
				if wait, ok := limits.take(clientIP(r, trustProxy), time.Now()); !ok {
					w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
					RateLimited(w, "rate limit exceeded", r.URL.Path)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientLimits struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimits(limit rate.Limit, burst int) *clientLimits {
	return &clientLimits{limit: limit, burst: burst, clients: make(map[string]*clientBucket)}
}

// take spends one token for ip. When none is left it reports how long
// until the next one.
func (c *clientLimits) take(ip string, now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.clients[ip]
	if !ok {
		if len(c.clients) >= limiterMaxClients {
			c.evictIdle(now)
		}
		b = &clientBucket{lim: rate.NewLimiter(c.limit, c.burst)}
		c.clients[ip] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// evictIdle must be called with c.mu held.
func (c *clientLimits) evictIdle(now time.Time) {
	for ip, b := range c.clients {
		if now.Sub(b.seen) > limiterIdleTTL {
			delete(c.clients, ip)
		}
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
