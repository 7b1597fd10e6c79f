package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dexterite/prguard/internal/review"
)

type jsonMeta struct {
	Tool    string   `json:"tool"`
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Model   string   `json:"model"`
	Checks  []string `json:"checks"`
}

type jsonSummary struct {
	TotalFindings int            `json:"total_findings"`
	FailedBatches int            `json:"failed_batches"`
	BySeverity    map[string]int `json:"by_severity"`
	ByCheck       map[string]int `json:"by_check"`
}

type jsonReport struct {
	Meta    jsonMeta             `json:"meta"`
	Summary jsonSummary          `json:"summary"`
	Results []review.CheckResult `json:"results"`
}

func formatJSON(report *review.Report, meta Meta) (string, error) {
	out := jsonReport{
		Meta: jsonMeta{
			Tool:    toolSlug,
			Version: toolVersion,
			Date:    report.FinishedAt.UTC().Format(time.RFC3339),
			Model:   meta.Model,
			Checks:  meta.Checks,
		},
		Summary: jsonSummary{
			TotalFindings: report.TotalFindings,
			FailedBatches: report.FailedBatches,
			BySeverity:    map[string]int{},
			ByCheck:       map[string]int{},
		},
		Results: report.Results,
	}
	for _, r := range report.Results {
		out.Summary.ByCheck[r.Check] = len(r.Findings)
		for _, f := range r.Findings {
			out.Summary.BySeverity[string(f.Severity)]++
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return string(data), nil
}
