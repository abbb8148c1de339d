package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/chaicode/docsqa-go/internal/logging"
)

// gateSystemPrompt instructs the model to judge topical scope and produce a
// hypothetical answer in one call. The hypothetical answer doubles as the
// retrieval query.
const gateSystemPrompt = `You are a helpful AI assistant built to answer user's questions strictly
related to programming, coding and development topics.

Context:
- The documentation is authored by the YouTube channel 'Chai aur Code' to help
  students learn key development concepts.
- The covered topics are: HTML, Git, C++, Django, SQL, and DevOps.

Your task:
- Carefully analyze the user's question to detect the intent behind the words.
  Think before you respond. Your goal is to be helpful while staying on-topic.
- If the question falls within the covered topics, write your best provisional
  answer to it.
- If the question is unrelated to programming, coding, or development, mark it
  as invalid.

Respond with ONLY a JSON object in this exact shape — no markdown fencing,
no explanation outside the JSON:

{"answer": "<your provisional answer, or a short rationale if invalid>", "is_query_valid": true}`

// gateResult is the schema-constrained response of the relevance gate.
type gateResult struct {
	// Answer is the hypothetical answer used as the retrieval query.
	Answer string `json:"answer"`

	// IsQueryValid reports whether the question is within the covered topics.
	IsQueryValid bool `json:"is_query_valid"`
}

// validate runs the relevance gate for one question. Transport errors are
// returned to the caller; a response that fails to parse as the expected
// schema is retried once, and a second parse failure fails closed — the
// question is treated as invalid rather than surfacing a 500.
func (p *Pipeline) validate(ctx context.Context, question string) (*gateResult, error) {
	messages := []*schema.Message{
		schema.SystemMessage(gateSystemPrompt),
		schema.UserMessage(question),
	}

	var lastParseErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := p.model.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("pipeline: relevance gate call failed: %w", err)
		}

		result, err := parseGateResult(resp.Content)
		if err == nil {
			return result, nil
		}
		lastParseErr = err
	}

	logging.FromContext(ctx).Warn("relevance gate output unparseable twice, failing closed",
		slog.Any("error", lastParseErr),
	)
	return &gateResult{IsQueryValid: false}, nil
}
