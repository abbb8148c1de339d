package ingestion

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageContent is the text extracted from one documentation page.
type PageContent struct {
	// Title is the page <title> text.
	Title string

	// Description is the page's meta description, if present.
	Description string

	// Text is the whitespace-normalised visible body text.
	Text string
}

// Extract parses raw HTML and pulls out the title, meta description, and
// visible body text. Script and style contents are discarded.
func Extract(html string) (*PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("ingestion: parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()

	return &PageContent{
		Title:       title,
		Description: strings.TrimSpace(description),
		Text:        normaliseWhitespace(body.Text()),
	}, nil
}

// normaliseWhitespace collapses runs of whitespace into single spaces while
// preserving paragraph breaks as single newlines.
func normaliseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
