// Package pipeline implements the question-answering flow over the Chai aur
// Code documentation corpus: a topical relevance gate, vector retrieval with a
// similarity filter, and structured answer synthesis. The pipeline holds no
// per-request state — construct it once at startup and share it across
// requests.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chaicode/docsqa-go/internal/budget"
	"github.com/chaicode/docsqa-go/internal/logging"
	"github.com/chaicode/docsqa-go/internal/rag"
)

const (
	// DefaultTopK is the number of chunks fetched from the vector index per query.
	DefaultTopK = 7

	// DefaultScoreThreshold is the minimum cosine similarity a retrieved chunk
	// must exceed to be used for synthesis. The index is configured with cosine
	// distance, so Qdrant returns similarity scores where higher is better —
	// chunks are kept when score > threshold.
	DefaultScoreThreshold = 0.6

	// RejectionMessage is the exact answer returned for questions outside the
	// documentation's topic set. Clients match on this string, so it must not
	// change.
	RejectionMessage = "Invalid prompt, it seems your input is not related to the documentation."
)

// StructuredAnswer is the final response produced by the pipeline.
type StructuredAnswer struct {
	// Answer is the human-readable explanation, or RejectionMessage for
	// out-of-scope questions.
	Answer string `json:"answer"`

	// RelevantLinks lists the documentation URLs the answer was drawn from,
	// deduplicated. Always non-nil so it serialises as [] rather than null.
	RelevantLinks []string `json:"relevant_links"`
}

// Generator is the subset of the chat model interface the pipeline needs.
// Declared on the consumer side so tests can substitute a fake; any eino
// chat model satisfies it.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config holds the dependencies and tunables for constructing a Pipeline.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel Generator

	// Retriever fetches documentation chunks for a query.
	Retriever rag.Retriever

	// TopK is the number of chunks to fetch per query. Defaults to DefaultTopK.
	TopK int

	// ScoreThreshold is the minimum similarity score for a chunk to be used.
	// Defaults to DefaultScoreThreshold if zero or negative.
	ScoreThreshold float32

	// MaxContextTokens is the estimated token budget for the synthesis input.
	// Lowest-ranked chunks are dropped to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Pipeline answers documentation questions by gating, retrieving, and
// synthesising. Safe for concurrent use.
type Pipeline struct {
	// model is the LLM used for both the relevance gate and synthesis.
	model Generator

	// retriever fetches documentation chunks.
	retriever rag.Retriever

	// topK is the number of chunks fetched per query.
	topK int

	// scoreThreshold is the minimum similarity for a chunk to be used.
	scoreThreshold float32

	// maxContextTokens is the synthesis input token budget.
	maxContextTokens int
}

// New constructs a Pipeline from the provided Config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("pipeline: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("pipeline: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := cfg.ScoreThreshold
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Pipeline{
		model:            cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		scoreThreshold:   threshold,
		maxContextTokens: maxCtx,
	}, nil
}

// Answer runs the full pipeline for one question. Out-of-scope questions and
// questions with no sufficiently similar documentation both produce the same
// rejection answer. Only provider/transport failures return an error.
func (p *Pipeline) Answer(ctx context.Context, question string) (*StructuredAnswer, error) {
	log := logging.FromContext(ctx)

	gate, err := p.validate(ctx, question)
	if err != nil {
		return nil, err
	}
	if !gate.IsQueryValid {
		log.Info("question rejected by relevance gate")
		return rejection(), nil
	}

	// Retrieve using the hypothetical answer rather than the raw question —
	// the model's elaboration is semantically closer to the documentation
	// than a terse user question.
	docs, err := p.retriever.Retrieve(ctx, gate.Answer, p.topK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: retrieval failed: %w", err)
	}

	relevant := docs[:0:0]
	for _, doc := range docs {
		if doc.Score > p.scoreThreshold {
			relevant = append(relevant, doc)
		}
	}
	if len(relevant) == 0 {
		log.Info("no chunks passed the similarity threshold",
			slog.Int("retrieved", len(docs)),
			slog.Float64("threshold", float64(p.scoreThreshold)),
		)
		return rejection(), nil
	}

	fixed := []*schema.Message{schema.SystemMessage(synthesisSystemPrompt)}
	before := len(relevant)
	relevant = budget.TrimDocs(fixed, relevant, p.maxContextTokens)
	if dropped := before - len(relevant); dropped > 0 {
		log.Warn("dropped chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(relevant)),
			slog.Int("max_tokens", p.maxContextTokens),
		)
	}
	if len(relevant) == 0 {
		// Every chunk exceeded the budget on its own; same terminal state as
		// an empty retrieval.
		return rejection(), nil
	}

	answer, err := p.synthesise(ctx, relevant)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// rejection returns the fixed out-of-scope answer. Built fresh per call so
// callers cannot mutate a shared slice.
func rejection() *StructuredAnswer {
	return &StructuredAnswer{
		Answer:        RejectionMessage,
		RelevantLinks: []string{},
	}
}
