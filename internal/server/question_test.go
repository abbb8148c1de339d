package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaicode/docsqa-go/internal/pipeline"
)

// fakeAnswerer returns a canned answer or error and records the question.
type fakeAnswerer struct {
	answer       *pipeline.StructuredAnswer
	err          error
	called       bool
	lastQuestion string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) (*pipeline.StructuredAnswer, error) {
	f.called = true
	f.lastQuestion = question
	return f.answer, f.err
}

// newTestServer builds a Server around the fake with a hermetic registry.
// The returned cleanup stops the rate limiter goroutine.
func newTestServer(t *testing.T, qa answerer, mutate func(*Config)) *Server {
	t.Helper()
	cfg := &Config{Registry: prometheus.NewRegistry()}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(qa, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

func postQuestion(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/question", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleQuestion_Success(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{answer: &pipeline.StructuredAnswer{
		Answer:        "HTML structures a page with elements.",
		RelevantLinks: []string{"https://chaidocs.vercel.app/youtube/chai-aur-html/welcome/"},
	}}
	s := newTestServer(t, qa, nil)

	rec := postQuestion(s, `{"question": "how does HTML work?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if qa.lastQuestion != "how does HTML work?" {
		t.Errorf("question = %q", qa.lastQuestion)
	}

	var resp questionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data == nil || resp.Data.Answer != "HTML structures a page with elements." {
		t.Errorf("unexpected data: %+v", resp.Data)
	}
	if len(resp.Data.RelevantLinks) != 1 {
		t.Errorf("relevant_links = %v", resp.Data.RelevantLinks)
	}
}

func TestHandleQuestion_RejectionPassthrough(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{answer: &pipeline.StructuredAnswer{
		Answer:        pipeline.RejectionMessage,
		RelevantLinks: []string{},
	}}
	s := newTestServer(t, qa, nil)

	rec := postQuestion(s, `{"question": "what's the weather today?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	want := `{"data":{"answer":"Invalid prompt, it seems your input is not related to the documentation.","relevant_links":[]}}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestHandleQuestion_EmptyQuestion(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{}
	s := newTestServer(t, qa, nil)

	rec := postQuestion(s, `{"question": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if qa.called {
		t.Error("pipeline must not run for an empty question")
	}

	var resp detailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Detail != "question is required" {
		t.Errorf("detail = %q", resp.Detail)
	}
}

func TestHandleQuestion_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeAnswerer{}, nil)

	rec := postQuestion(s, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuestion_PipelineError(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{err: errors.New("gemini: 503 model overloaded")}
	s := newTestServer(t, qa, nil)

	rec := postQuestion(s, `{"question": "what is git?"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	// The raw provider error must never reach the client.
	if strings.Contains(rec.Body.String(), "overloaded") {
		t.Errorf("provider error leaked to client: %s", rec.Body.String())
	}

	var resp detailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Detail == "" {
		t.Error("detail should carry a generic human-readable message")
	}
}

func TestHandleQuestion_NilLinksNormalised(t *testing.T) {
	t.Parallel()

	qa := &fakeAnswerer{answer: &pipeline.StructuredAnswer{Answer: "plain answer"}}
	s := newTestServer(t, qa, nil)

	rec := postQuestion(s, `{"question": "q"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"relevant_links":[]`) {
		t.Errorf("relevant_links should serialise as [], got: %s", rec.Body.String())
	}
}
