// Package output renders a run report as Markdown, JSON, or SARIF.
package output

import (
	"fmt"

	"github.com/dexterite/prguard/internal/review"
)

const (
	toolName    = "PR Guard AI"
	toolSlug    = "pr-guard-ai"
	toolVersion = "1.0.0"
	toolURI     = "https://github.com/dexterite/pr-guard-ai"
)

// Meta carries run facts the formatters surface alongside the findings.
type Meta struct {
	Model  string
	Checks []string
}

// Formats lists the supported output formats.
var Formats = []string{"markdown", "json", "sarif"}

// Format renders report in the named format.
func Format(report *review.Report, format string, meta Meta) (string, error) {
	switch format {
	case "markdown", "":
		return formatMarkdown(report, meta), nil
	case "json":
		return formatJSON(report, meta)
	case "sarif":
		return formatSARIF(report)
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// Extension returns the report file extension for a format.
func Extension(format string) string {
	switch format {
	case "json":
		return "json"
	case "sarif":
		return "sarif.json"
	case "markdown", "":
		return "md"
	default:
		return "txt"
	}
}

// severityOrder sorts critical first for display.
var severityOrder = []review.Severity{
	review.SeverityCritical,
	review.SeverityHigh,
	review.SeverityMedium,
	review.SeverityLow,
	review.SeverityInfo,
}

func severityCounts(report *review.Report) map[review.Severity]int {
	counts := make(map[review.Severity]int)
	for _, r := range report.Results {
		for _, f := range r.Findings {
			counts[f.Severity]++
		}
	}
	return counts
}
