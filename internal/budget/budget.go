// Package budget provides token budget estimation and retrieval-context
// trimming for the answer pipeline. Because the service supports multiple LLM
// backends with different tokenizers, this package uses a conservative
// character-based heuristic: 1 token ≈ 4 characters (English prose and code).
// This deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/chaicode/docsqa-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the output. Override via Config.MaxContextTokens.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimateDoc returns the estimated token cost of rendering one retrieved
// chunk into the synthesis prompt, including its source metadata lines.
func EstimateDoc(doc rag.Document) int {
	return Estimate(doc.Content) + Estimate(doc.Source) + Estimate(doc.Title) + Estimate(doc.Description)
}

// TrimDocs drops retrieved chunks from the end of docs until the estimated
// token cost of the remaining chunks plus fixed fits within maxTokens. fixed
// contains the messages that must not be trimmed (system prompt and user
// question). Retrieval order is preserved, so the lowest-ranked chunks are
// dropped first.
//
// If even a single chunk exceeds the budget, an empty slice is returned —
// callers should log a warning when this happens, since the answer will be
// synthesised without retrieval context.
func TrimDocs(fixed []*schema.Message, docs []rag.Document, maxTokens int) []rag.Document {
	if len(docs) == 0 {
		return docs
	}

	budget := maxTokens - EstimateMessages(fixed)
	total := 0
	for _, doc := range docs {
		total += EstimateDoc(doc)
	}

	for len(docs) > 0 && total > budget {
		// Drop the lowest-ranked chunk.
		total -= EstimateDoc(docs[len(docs)-1])
		docs = docs[:len(docs)-1]
	}
	return docs
}
