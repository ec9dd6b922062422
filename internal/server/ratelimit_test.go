package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimitMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		burst     int
		path      string
		requests  int
		wantLast  int
		wantRetry string
	}{
		{"within budget", 1000, 1000, "/api/v1/monitor/status", 5, http.StatusOK, ""},
		{"burst exhausted", 1, 1, "/api/v1/monitor/status", 2, http.StatusTooManyRequests, "1"},
		{"slow refill hint", 0.1, 1, "/api/v1/monitor/status", 2, http.StatusTooManyRequests, "10"},
		{"skipped path", 0.001, 1, "/healthz", 10, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimitMiddleware(tt.rps, tt.burst, false, []string{"/healthz"})(okHandler(http.StatusOK))

			var w *httptest.ResponseRecorder
			for range tt.requests {
				req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
				req.RemoteAddr = "10.0.0.1:9999"
				w = httptest.NewRecorder()
				handler.ServeHTTP(w, req)
			}
			if w.Code != tt.wantLast {
				t.Errorf("last status = %d, want %d", w.Code, tt.wantLast)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetry)
			}
		})
	}
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	handler := RateLimitMiddleware(1, 1, false, nil)(okHandler(http.StatusOK))

	for _, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/monitor/refresh", http.NoBody)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", remote, w.Code)
		}
	}
}

func TestClientLimits_RejectedRequestKeepsToken(t *testing.T) {
	c := newClientLimits(rate.Every(time.Second), 1)
	now := time.Now()

	if _, ok := c.take("a", now); !ok {
		t.Fatal("first take rejected")
	}
	for range 3 {
		if _, ok := c.take("a", now.Add(100*time.Millisecond)); ok {
			t.Fatal("take within refill window allowed")
		}
	}
	if _, ok := c.take("a", now.Add(time.Second)); !ok {
		t.Error("rejected takes consumed the refilled token")
	}
}

func TestClientLimits_EvictsIdle(t *testing.T) {
	c := newClientLimits(rate.Inf, 1)
	start := time.Now()
	c.take("stale", start)
	c.take("fresh", start.Add(limiterIdleTTL))

	c.mu.Lock()
	c.evictIdle(start.Add(limiterIdleTTL + time.Second))
	_, staleKept := c.clients["stale"]
	_, freshKept := c.clients["fresh"]
	c.mu.Unlock()

	if staleKept || !freshKept {
		t.Errorf("after eviction stale=%v fresh=%v, want false/true", staleKept, freshKept)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff        string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.168.1.100:12345", "", false, "192.168.1.100"},
		{"xff ignored without trust", "127.0.0.1:12345", "203.0.113.50, 70.41.3.18", false, "127.0.0.1"},
		{"xff honoured behind proxy", "127.0.0.1:12345", "203.0.113.50, 70.41.3.18", true, "203.0.113.50"},
		{"empty xff entry", "127.0.0.1:12345", " , 70.41.3.18", true, "127.0.0.1"},
		{"no port", "10.1.1.1", "", false, "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
