package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chaicode/docsqa-go/internal/rag"
)

// fakeGenerator returns scripted responses in order, one per Generate call.
type fakeGenerator struct {
	responses []string
	err       error
	calls     int
	// lastInput records the messages of the most recent Generate call.
	lastInput []*schema.Message
}

func (f *fakeGenerator) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.responses) {
		return nil, errors.New("fake generator: no scripted response left")
	}
	resp := f.responses[f.calls]
	f.calls++
	return schema.AssistantMessage(resp, nil), nil
}

// fakeRetriever returns canned documents and records how it was called.
type fakeRetriever struct {
	docs      []rag.Document
	err       error
	called    bool
	lastQuery string
	lastTopK  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]rag.Document, error) {
	f.called = true
	f.lastQuery = query
	f.lastTopK = topK
	return f.docs, f.err
}

func newTestPipeline(t *testing.T, gen *fakeGenerator, ret *fakeRetriever) *Pipeline {
	t.Helper()
	p, err := New(&Config{ChatModel: gen, Retriever: ret})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func assertRejection(t *testing.T, got *StructuredAnswer) {
	t.Helper()
	if got.Answer != RejectionMessage {
		t.Errorf("answer = %q, want rejection message", got.Answer)
	}
	if got.RelevantLinks == nil || len(got.RelevantLinks) != 0 {
		t.Errorf("relevant_links = %v, want empty non-nil slice", got.RelevantLinks)
	}
}

func TestNew_NilDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Retriever: &fakeRetriever{}}); err == nil {
		t.Error("expected error for nil ChatModel")
	}
	if _, err := New(&Config{ChatModel: &fakeGenerator{}}); err == nil {
		t.Error("expected error for nil Retriever")
	}
}

func TestAnswer_OutOfScope(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`{"answer": "this is about the weather, not development", "is_query_valid": false}`,
	}}
	ret := &fakeRetriever{}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "what's the weather today?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	assertRejection(t, got)
	if ret.called {
		t.Error("retriever must not be called for out-of-scope questions")
	}
	if gen.calls != 1 {
		t.Errorf("generate calls = %d, want 1 (gate only)", gen.calls)
	}
}

func TestAnswer_ValidFlow(t *testing.T) {
	t.Parallel()

	const htmlURL = "https://chaidocs.vercel.app/youtube/chai-aur-html/welcome/"
	const gitURL = "https://chaidocs.vercel.app/youtube/chai-aur-git/welcome/"

	gen := &fakeGenerator{responses: []string{
		`{"answer": "HTML structures a web page using elements and tags.", "is_query_valid": true}`,
		`{"answer": "HTML is the skeleton of every web page.",
		  "relevant_links": ["` + htmlURL + `", "` + htmlURL + `", "https://invented.example.com/", "` + gitURL + `"]}`,
	}}
	ret := &fakeRetriever{docs: []rag.Document{
		{ID: "1", Content: "HTML tags", Source: htmlURL, Title: "HTML", Score: 0.91},
		{ID: "2", Content: "Branching", Source: gitURL, Title: "Git", Score: 0.75},
		{ID: "3", Content: "Pointers", Source: "https://chaidocs.vercel.app/youtube/chai-aur-cpp/welcome/", Score: 0.41},
	}}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "how does HTML work?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !ret.called {
		t.Fatal("retriever was not called for an in-scope question")
	}
	if ret.lastQuery != "HTML structures a web page using elements and tags." {
		t.Errorf("retrieval query = %q, want the hypothetical answer", ret.lastQuery)
	}
	if ret.lastTopK != DefaultTopK {
		t.Errorf("topK = %d, want %d", ret.lastTopK, DefaultTopK)
	}
	if got.Answer != "HTML is the skeleton of every web page." {
		t.Errorf("answer = %q", got.Answer)
	}
	// Duplicates removed, invented link dropped; the cpp chunk failed the
	// similarity filter so its URL could not appear either.
	want := []string{htmlURL, gitURL}
	if !reflect.DeepEqual(got.RelevantLinks, want) {
		t.Errorf("relevant_links = %v, want %v", got.RelevantLinks, want)
	}
}

func TestAnswer_NoChunksPassThreshold(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`{"answer": "Django is a Python web framework.", "is_query_valid": true}`,
	}}
	ret := &fakeRetriever{docs: []rag.Document{
		{ID: "1", Content: "unrelated", Source: "https://example.com/a", Score: 0.31},
		{ID: "2", Content: "unrelated", Source: "https://example.com/b", Score: 0.12},
	}}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "tell me about Django middleware")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	assertRejection(t, got)
	if gen.calls != 1 {
		t.Errorf("generate calls = %d, want 1 (synthesis must be skipped)", gen.calls)
	}
}

func TestAnswer_EmptyRetrieval(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`{"answer": "SQL joins combine rows from two tables.", "is_query_valid": true}`,
	}}
	p := newTestPipeline(t, gen, &fakeRetriever{})

	got, err := p.Answer(context.Background(), "what is a join?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	assertRejection(t, got)
}

func TestAnswer_SynthesisFallbackRawText(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`{"answer": "Git tracks changes to files over time.", "is_query_valid": true}`,
		`Git is a distributed version control system. Plain prose, no JSON here.`,
	}}
	ret := &fakeRetriever{docs: []rag.Document{
		{ID: "1", Content: "git init", Source: "https://chaidocs.vercel.app/youtube/chai-aur-git/welcome/", Score: 0.88},
	}}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "what is git?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Answer != "Git is a distributed version control system. Plain prose, no JSON here." {
		t.Errorf("answer = %q, want the raw model output", got.Answer)
	}
	if len(got.RelevantLinks) != 0 {
		t.Errorf("relevant_links = %v, want empty", got.RelevantLinks)
	}
}

func TestAnswer_GateUnparseableFailsClosed(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`I refuse to emit JSON`,
		`still not JSON`,
	}}
	ret := &fakeRetriever{}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "how do I center a div?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	assertRejection(t, got)
	if gen.calls != 2 {
		t.Errorf("generate calls = %d, want 2 (one retry)", gen.calls)
	}
	if ret.called {
		t.Error("retriever must not be called when the gate fails closed")
	}
}

func TestAnswer_GateRetrySucceeds(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{
		`garbage`,
		`{"answer": "CSS centers elements with flexbox.", "is_query_valid": true}`,
		`{"answer": "Use display: flex.", "relevant_links": []}`,
	}}
	ret := &fakeRetriever{docs: []rag.Document{
		{ID: "1", Content: "flexbox", Source: "https://chaidocs.vercel.app/youtube/chai-aur-html/css/", Score: 0.8},
	}}
	p := newTestPipeline(t, gen, ret)

	got, err := p.Answer(context.Background(), "how do I center a div?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Answer != "Use display: flex." {
		t.Errorf("answer = %q", got.Answer)
	}
	if !ret.called {
		t.Error("retriever should be called after a successful gate retry")
	}
}

func TestAnswer_GateTransportError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	p := newTestPipeline(t, &fakeGenerator{err: wantErr}, &fakeRetriever{})

	if _, err := p.Answer(context.Background(), "what is git?"); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestAnswer_RetrieverError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("qdrant unreachable")
	gen := &fakeGenerator{responses: []string{
		`{"answer": "hypothetical", "is_query_valid": true}`,
	}}
	p := newTestPipeline(t, gen, &fakeRetriever{err: wantErr})

	if _, err := p.Answer(context.Background(), "what is git?"); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped retriever error, got %v", err)
	}
}

func TestSanitiseLinks(t *testing.T) {
	t.Parallel()

	docs := []rag.Document{
		{Source: "https://example.com/a"},
		{Source: "https://example.com/b"},
	}
	links := []string{
		"https://example.com/b",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/invented",
	}
	got := sanitiseLinks(links, docs)
	want := []string{"https://example.com/b", "https://example.com/a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sanitiseLinks = %v, want %v", got, want)
	}
}
