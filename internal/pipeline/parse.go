package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a surrounding markdown code fence, if present. Models
// sometimes wrap JSON output in ```json fences despite being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseGateResult extracts the relevance gate schema from raw model output.
func parseGateResult(output string) (*gateResult, error) {
	result := &gateResult{}
	if err := json.Unmarshal([]byte(stripFences(output)), result); err != nil {
		return nil, fmt.Errorf("pipeline: failed to unmarshal gate output: %w", err)
	}
	return result, nil
}

// parseStructuredAnswer extracts the synthesis schema from raw model output.
func parseStructuredAnswer(output string) (*StructuredAnswer, error) {
	answer := &StructuredAnswer{}
	if err := json.Unmarshal([]byte(stripFences(output)), answer); err != nil {
		return nil, fmt.Errorf("pipeline: failed to unmarshal synthesis output: %w", err)
	}
	if answer.RelevantLinks == nil {
		answer.RelevantLinks = []string{}
	}
	return answer, nil
}
