package rag

import (
	"context"
	"errors"
	"testing"
)

// fakeEmbedder returns a fixed vector for every input text.
type fakeEmbedder struct {
	vec []float32
	err error
	// lastTexts records the most recent Embed input for assertions.
	lastTexts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.lastTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore returns canned search results and records the requested topK.
type fakeStore struct {
	docs      []Document
	err       error
	lastTopK  int
	lastQuery []float32
}

func (f *fakeStore) Upsert(context.Context, []Document, [][]float32) error { return nil }

func (f *fakeStore) Search(_ context.Context, query []float32, topK int) ([]Document, error) {
	f.lastQuery = query
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeStore) Delete(context.Context, []string) error { return nil }
func (f *fakeStore) Close() error                           { return nil }

func TestNewRetriever_NilArgs(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &fakeStore{}, 7); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 7); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	store := &fakeStore{docs: []Document{
		{ID: "a", Content: "HTML intro", Source: "https://chaidocs.vercel.app/youtube/chai-aur-html/welcome/", Score: 0.91},
		{ID: "b", Content: "Git basics", Source: "https://chaidocs.vercel.app/youtube/chai-aur-git/welcome/", Score: 0.72},
	}}

	r, err := NewRetriever(emb, store, 7)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	docs, err := r.Retrieve(context.Background(), "how do I start with HTML?", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if store.lastTopK != 5 {
		t.Errorf("expected topK=5 passed to store, got %d", store.lastTopK)
	}
	if len(emb.lastTexts) != 1 || emb.lastTexts[0] != "how do I start with HTML?" {
		t.Errorf("unexpected embed input: %v", emb.lastTexts)
	}
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{1}}, store, 7)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.lastTopK != 7 {
		t.Errorf("expected default topK=7, got %d", store.lastTopK)
	}
}

func TestRetrieve_EmbedError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("embed backend down")
	r, err := NewRetriever(&fakeEmbedder{err: wantErr}, &fakeStore{}, 7)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped embed error, got %v", err)
	}
}

func TestRetrieve_SearchError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("qdrant unreachable")
	r, err := NewRetriever(&fakeEmbedder{vec: []float32{1}}, &fakeStore{err: wantErr}, 7)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "q", 3); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped search error, got %v", err)
	}
}
