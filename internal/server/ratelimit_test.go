package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chaicode/docsqa-go/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestLimiter builds a rateLimiter with a controllable clock and no
// eviction goroutine.
func newTestLimiter(limit int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		windows: make(map[string]*ipWindow),
		limit:   limit,
		window:  window,
		now:     now,
		log:     testLogger(),
	}
}

func TestRateLimit_SeventhAllowedEighthRejected(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{answer: &pipeline.StructuredAnswer{Answer: "ok", RelevantLinks: []string{}}}
	s := newTestServer(t, qa, nil)

	for i := 1; i <= 7; i++ {
		rec := postQuestion(s, `{"question": "q"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := postQuestion(s, `{"question": "q"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 8: status = %d, want 429", rec.Code)
	}
	want := `{"detail":"Rate limit exceeded. Try again later."}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("429 body = %s, want %s", got, want)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestRateLimit_WindowRollover(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(2, 15*time.Minute, func() time.Time { return current })

	for i := 0; i < 2; i++ {
		if ok, _ := rl.allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retryAfter := rl.allow("10.0.0.1")
	if ok {
		t.Fatal("request over the limit should be rejected")
	}
	if retryAfter != 15*time.Minute {
		t.Errorf("retryAfter = %v, want 15m", retryAfter)
	}

	// Advance past the window — the counter must reset.
	current = current.Add(15*time.Minute + time.Second)
	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Error("request after window rollover should be allowed")
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl := newTestLimiter(1, 15*time.Minute, time.Now)

	if ok, _ := rl.allow("10.0.0.1"); !ok {
		t.Fatal("first request from .1 should pass")
	}
	if ok, _ := rl.allow("10.0.0.1"); ok {
		t.Fatal("second request from .1 should be rejected")
	}
	if ok, _ := rl.allow("10.0.0.2"); !ok {
		t.Error("an exhausted limit for .1 must not affect .2")
	}
}

func TestRateLimit_Evict(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(7, 15*time.Minute, func() time.Time { return current })

	rl.allow("10.0.0.1")
	current = current.Add(31 * time.Minute)
	rl.allow("10.0.0.2")

	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.windows["10.0.0.1"]; ok {
		t.Error("stale entry should have been evicted")
	}
	if _, ok := rl.windows["10.0.0.2"]; !ok {
		t.Error("fresh entry should have been kept")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Errorf("clientIP = %q, want 192.0.2.7", got)
	}

	req.RemoteAddr = "[::1]:8080"
	if got := clientIP(req); got != "[::1]" {
		t.Errorf("clientIP = %q, want [::1]", got)
	}
}
