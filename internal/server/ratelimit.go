package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chaicode/docsqa-go/internal/logging"
)

// defaultRateLimit is the number of requests allowed per IP per window on
// POST /api/question when no explicit limit is configured.
const defaultRateLimit = 7

// defaultRateWindow is the fixed rate-limit window when none is configured.
const defaultRateWindow = 15 * time.Minute

// rateLimitDetail is the exact 429 body clients receive. Clients match on
// this string, so it must not change.
const rateLimitDetail = "Rate limit exceeded. Try again later."

// ipWindow tracks one client IP's request count within the current fixed
// window, plus the last time it was seen for eviction.
type ipWindow struct {
	// count is the number of requests observed in the current window.
	count int
	// windowStart is when the current window began.
	windowStart time.Time
	// lastSeen is updated on every request from this IP for eviction.
	lastSeen time.Time
}

// rateLimiter is an HTTP middleware that enforces a per-IP fixed-window
// request count: exactly limit requests are allowed per window, and the next
// one is rejected until the window rolls over. A token bucket would smooth
// the limit over time, which is not the contract here — the Nth request must
// succeed and the N+1th must fail within the same window.
// Stale IP entries are evicted periodically to bound memory usage.
type rateLimiter struct {
	// mu protects the windows map.
	mu sync.Mutex
	// windows maps remote IP to its current window state.
	windows map[string]*ipWindow
	// limit is the number of requests allowed per window per IP.
	limit int
	// window is the fixed window duration.
	window time.Duration
	// now returns the current time; replaced in tests.
	now func() time.Time
	// log is the structured logger for rate-limit events.
	log *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// goroutine. The goroutine exits when the returned stop function is called.
func newRateLimiter(limit int, window time.Duration, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		windows: make(map[string]*ipWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
		log:     log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// allow records a request from ip and reports whether it is within the limit.
// When the request is rejected, retryAfter is the time remaining until the
// window rolls over.
func (rl *rateLimiter) allow(ip string) (ok bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, found := rl.windows[ip]
	if !found || now.Sub(entry.windowStart) >= rl.window {
		entry = &ipWindow{windowStart: now}
		rl.windows[ip] = entry
	}
	entry.lastSeen = now

	if entry.count >= rl.limit {
		return false, entry.windowStart.Add(rl.window).Sub(now)
	}
	entry.count++
	return true, 0
}

// evictLoop removes IP entries whose window has long expired. It runs in a
// background goroutine and exits when stopCh is closed.
func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict removes IP entries not seen for more than two full windows.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.window)
	for ip, entry := range rl.windows {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.windows, ip)
		}
	}
}

// middleware returns an http.Handler that enforces the rate limit before
// delegating to next. Requests that exceed the limit receive 429 Too Many
// Requests with a Retry-After header, the fixed detail body, and a structured
// WARN log entry.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		ok, retryAfter := rl.allow(ip)
		if !ok {
			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, detailResponse{Detail: rateLimitDetail})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds formats a duration as whole seconds, rounded up so the
// client never retries before the window actually rolls over.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// clientIP extracts the remote IP from the request, stripping the port.
// It does not trust X-Forwarded-For since this server is expected to sit
// behind no proxy by default.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	// RemoteAddr is "host:port" for TCP connections.
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
