package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dexterite/prguard/internal/review"
)

var severityIcons = map[review.Severity]string{
	review.SeverityCritical: "\U0001f534",
	review.SeverityHigh:     "\U0001f7e0",
	review.SeverityMedium:   "\U0001f7e1",
	review.SeverityLow:      "\U0001f535",
	review.SeverityInfo:     "⚪",
}

func formatMarkdown(report *review.Report, meta Meta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# \U0001f6e1️ %s Report\n\n", toolName)
	fmt.Fprintf(&b, "**Date:** %s  \n", report.FinishedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "**Model:** `%s`  \n", meta.Model)
	fmt.Fprintf(&b, "**Checks:** %s\n\n", strings.Join(meta.Checks, ", "))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Check | Files | Findings |\n")
	b.WriteString("|-------|------:|:--------:|\n")
	for _, r := range report.Results {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", r.Check, r.FilesAnalyzed, len(r.Findings))
	}
	fmt.Fprintf(&b, "| **Total** | | **%d** |\n\n", report.TotalFindings)

	counts := severityCounts(report)
	if len(counts) > 0 {
		b.WriteString("### Severity Breakdown\n\n")
		for _, sev := range severityOrder {
			if c := counts[sev]; c > 0 {
				fmt.Fprintf(&b, "- %s **%s**: %d\n", severityIcons[sev], strings.ToUpper(string(sev)), c)
			}
		}
		b.WriteString("\n")
	}

	for _, r := range report.Results {
		if len(r.Findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", r.Check)
		writeFindings(&b, r.Findings)
	}

	if report.TotalFindings == 0 {
		b.WriteString("## ✅ No Issues Found\n\n")
		b.WriteString("All checks passed without findings.\n")
	}

	if report.Degraded() {
		b.WriteString("## ⚠️ Degraded Run\n\n")
		fmt.Fprintf(&b, "%d batch(es) could not be analyzed; the findings above may be incomplete.\n\n", report.FailedBatches)
		for _, r := range report.Results {
			for _, fail := range r.Failures {
				fmt.Fprintf(&b, "- **%s** batch %d (%s): %s\n",
					r.Check, fail.Batch, summarizeFiles(fail.Files), fail.Error)
			}
		}
	}

	return b.String()
}

// writeFindings renders one check's findings, most severe first. The sort
// is stable so batch order survives within a severity.
func writeFindings(b *strings.Builder, findings []review.Finding) {
	sorted := make([]review.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.AtLeast(sorted[j].Severity) && sorted[i].Severity != sorted[j].Severity
	})

	for i, f := range sorted {
		title := f.Title
		if title == "" {
			title = "Finding"
		}
		fmt.Fprintf(b, "### %s %d. %s\n\n", severityIcons[f.Severity], i+1, title)

		loc := ""
		if f.File != "" {
			loc = fmt.Sprintf(" in `%s`", f.File)
			if f.Line > 0 {
				loc += fmt.Sprintf(" (line %d)", f.Line)
			}
		}
		category := f.Category
		if category == "" {
			category = "general"
		}
		fmt.Fprintf(b, "**Severity:** %s · **Category:** %s%s\n\n",
			strings.ToUpper(string(f.Severity)), category, loc)

		if f.Description != "" {
			fmt.Fprintf(b, "%s\n\n", f.Description)
		}
		if f.Suggestion != "" {
			fmt.Fprintf(b, "**\U0001f4a1 Suggestion:** %s\n\n", f.Suggestion)
		}
		b.WriteString("---\n\n")
	}
}

func summarizeFiles(files []string) string {
	const max = 5
	if len(files) <= max {
		return strings.Join(files, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(files[:max], ", "), len(files)-max)
}
