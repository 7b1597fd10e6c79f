package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawResponse mirrors the findings schema. Pointer fields distinguish a
// missing key from an empty value so absence is a hard parse failure.
type rawResponse struct {
	Findings *[]rawFinding `json:"findings"`
	Summary  *string       `json:"summary"`
}

type rawFinding struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Parsed is a schema-valid model response after normalization.
type Parsed struct {
	Findings []Finding
	Summary  string

	// Dropped counts findings that referenced files outside the batch.
	Dropped int
}

// ParseResponse validates a model response against the findings schema and
// filters hallucinated file references. batchFiles is the set of paths that
// were actually sent; a finding naming any other path is dropped. The schema
// is a strict contract: a missing key or a wrong type is an error, never a
// partial parse.
func ParseResponse(content string, batchFiles map[string]bool) (Parsed, error) {
	body := stripFences(content)

	var raw rawResponse
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Parsed{}, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if raw.Findings == nil {
		return Parsed{}, fmt.Errorf("response missing required key %q", "findings")
	}
	if raw.Summary == nil {
		return Parsed{}, fmt.Errorf("response missing required key %q", "summary")
	}

	parsed := Parsed{Summary: *raw.Summary}
	for _, rf := range *raw.Findings {
		if !batchFiles[rf.File] {
			parsed.Dropped++
			continue
		}
		parsed.Findings = append(parsed.Findings, Finding{
			File:        rf.File,
			Line:        rf.Line,
			Severity:    ParseSeverity(rf.Severity),
			Category:    rf.Category,
			Title:       rf.Title,
			Description: rf.Description,
			Suggestion:  rf.Suggestion,
		})
	}
	return parsed, nil
}

// stripFences unwraps a response the model wrapped in a Markdown code
// fence despite the json_object response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
