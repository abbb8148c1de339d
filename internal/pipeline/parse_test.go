package pipeline

import (
	"testing"
)

func TestParseGateResult(t *testing.T) {
	t.Parallel()

	got, err := parseGateResult(`{"answer": "HTML is a markup language", "is_query_valid": true}`)
	if err != nil {
		t.Fatalf("parseGateResult: %v", err)
	}
	if !got.IsQueryValid {
		t.Error("is_query_valid should be true")
	}
	if got.Answer != "HTML is a markup language" {
		t.Errorf("answer = %q", got.Answer)
	}
}

func TestParseGateResult_Fenced(t *testing.T) {
	t.Parallel()

	fenced := "```json\n{\"answer\": \"x\", \"is_query_valid\": false}\n```"
	got, err := parseGateResult(fenced)
	if err != nil {
		t.Fatalf("parseGateResult: %v", err)
	}
	if got.IsQueryValid {
		t.Error("is_query_valid should be false")
	}
}

func TestParseGateResult_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := parseGateResult("not json at all"); err == nil {
		t.Error("expected error for non-JSON input")
	}
}

func TestParseStructuredAnswer(t *testing.T) {
	t.Parallel()

	got, err := parseStructuredAnswer(`{"answer": "use git init", "relevant_links": ["https://example.com/git"]}`)
	if err != nil {
		t.Fatalf("parseStructuredAnswer: %v", err)
	}
	if got.Answer != "use git init" {
		t.Errorf("answer = %q", got.Answer)
	}
	if len(got.RelevantLinks) != 1 || got.RelevantLinks[0] != "https://example.com/git" {
		t.Errorf("relevant_links = %v", got.RelevantLinks)
	}
}

func TestParseStructuredAnswer_NilLinks(t *testing.T) {
	t.Parallel()

	got, err := parseStructuredAnswer(`{"answer": "x"}`)
	if err != nil {
		t.Fatalf("parseStructuredAnswer: %v", err)
	}
	if got.RelevantLinks == nil {
		t.Error("relevant_links should be normalised to an empty slice")
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
