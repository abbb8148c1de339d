package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakePinger reports a fixed readiness result.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }
func (f *fakePinger) Name() string               { return f.name }

func getPath(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	// Health must succeed even when every dependency probe fails.
	s := newTestServer(t, &fakeAnswerer{}, func(cfg *Config) {
		cfg.Pingers = []Pinger{&fakePinger{name: "qdrant", err: errors.New("unreachable")}}
	})

	rec := getPath(s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "Server up !" {
		t.Errorf("message = %q, want 'Server up !'", body["message"])
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, func(cfg *Config) {
		cfg.Pingers = []Pinger{&fakePinger{name: "qdrant"}}
	})

	rec := getPath(s, "/api/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 1 || !resp.Checks[0].OK {
		t.Errorf("unexpected readiness: %+v", resp)
	}
}

func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, func(cfg *Config) {
		cfg.Pingers = []Pinger{
			&fakePinger{name: "qdrant", err: errors.New("connection refused")},
		}
	})

	rec := getPath(s, "/api/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Ready || resp.Checks[0].Error == "" {
		t.Errorf("unexpected readiness: %+v", resp)
	}
}

func TestMultiPinger(t *testing.T) {
	t.Parallel()

	ok := NewMultiPinger(&fakePinger{name: "a"}, &fakePinger{name: "b"})
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("all-healthy MultiPinger returned %v", err)
	}

	bad := NewMultiPinger(
		&fakePinger{name: "a"},
		&fakePinger{name: "b", err: errors.New("down")},
	)
	err := bad.Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "b:") {
		t.Errorf("expected error naming the failed pinger, got %v", err)
	}
}

// Liveness must not depend on the pipeline either.
func TestHandleHealth_PipelineBroken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{err: errors.New("provider down")}, nil)
	rec := getPath(s, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
