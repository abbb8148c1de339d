package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/chaicode/docsqa-go/internal/rag"
)

// synthesisSystemPrompt instructs the model to turn the retrieved chunks into
// one structured, cited answer.
const synthesisSystemPrompt = `You are a helpful AI assistant.
You will parse the provided text documents and generate a well-structured
explanation based on the user's prompt, human-readable answer.
The context involves documentation related to HTML, Git, C++, Django, SQL,
and DevOps. These docs are authored by Hitesh Choudhary who runs the YouTube
channel 'Chai aur Code' to help students learn from documentation.

Rules:
1. If no relevant info is found, return
   {"answer": "` + RejectionMessage + `", "relevant_links": []}
2. Always return a list of relevant links in the format of [URL, URL, URL]
   if any relevant links are found.
3. The final answer should be a well-structured, human-readable answer.
4. Use the style and tone of beginner-friendly explanations, similar to
   what's found in the documentation.

Respond with ONLY a JSON object in the shape
{"answer": "...", "relevant_links": ["...", "..."]} — no markdown fencing.`

// synthesise renders the filtered chunks into a prompt, calls the model, and
// parses the structured response. An unparseable response falls back to
// treating the raw text as the answer with no links.
func (p *Pipeline) synthesise(ctx context.Context, docs []rag.Document) (*StructuredAnswer, error) {
	messages := []*schema.Message{
		schema.SystemMessage(synthesisSystemPrompt),
		schema.UserMessage(renderContext(docs)),
	}

	resp, err := p.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("pipeline: synthesis call failed: %w", err)
	}

	answer, err := parseStructuredAnswer(resp.Content)
	if err != nil {
		// The provider returned free text instead of the schema — serve it
		// as-is rather than failing the request.
		answer = &StructuredAnswer{
			Answer:        resp.Content,
			RelevantLinks: []string{},
		}
	}

	answer.RelevantLinks = sanitiseLinks(answer.RelevantLinks, docs)
	return answer, nil
}

// renderContext formats each chunk as a block with its source metadata,
// concatenated in retrieval order with blank-line separation.
func renderContext(docs []rag.Document) string {
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		blocks = append(blocks, fmt.Sprintf(
			"Source URL: %s\nTitle: %s\nDescription: %s\n\n%s",
			doc.Source, doc.Title, doc.Description, doc.Content,
		))
	}
	return strings.Join(blocks, "\n\n")
}

// sanitiseLinks deduplicates the model's links and drops any URL that does
// not appear as a source of a retrieved chunk, so the response never cites a
// page that was not actually used. First-occurrence order is preserved.
func sanitiseLinks(links []string, docs []rag.Document) []string {
	sources := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		sources[doc.Source] = struct{}{}
	}

	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := sources[link]; !ok {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
