package output

import (
	"encoding/json"
	"fmt"

	"github.com/dexterite/prguard/internal/review"
)

// SARIF 2.1.0, the subset GitHub Code Scanning consumes.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string    `json:"id"`
	ShortDescription sarifText `json:"shortDescription"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifText       `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           sarifRegion   `json:"region"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

var sarifLevels = map[review.Severity]string{
	review.SeverityCritical: "error",
	review.SeverityHigh:     "error",
	review.SeverityMedium:   "warning",
	review.SeverityLow:      "note",
	review.SeverityInfo:     "note",
}

func formatSARIF(report *review.Report) (string, error) {
	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:           toolName,
			Version:        toolVersion,
			InformationURI: toolURI,
			Rules:          []sarifRule{},
		}},
		Results: []sarifResult{},
	}

	seen := make(map[string]bool)
	for _, r := range report.Results {
		for _, f := range r.Findings {
			category := f.Category
			if category == "" {
				category = "general"
			}
			ruleID := r.Check + "/" + category

			if !seen[ruleID] {
				seen[ruleID] = true
				title := f.Title
				if title == "" {
					title = category
				}
				run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
					ID:               ruleID,
					ShortDescription: sarifText{Text: title},
				})
			}

			message := f.Description
			if message == "" {
				message = f.Title
			}
			entry := sarifResult{
				RuleID:  ruleID,
				Level:   sarifLevels[f.Severity],
				Message: sarifText{Text: message},
			}
			if f.File != "" {
				line := f.Line
				if line < 1 {
					line = 1
				}
				entry.Locations = []sarifLocation{{
					PhysicalLocation: sarifPhysical{
						ArtifactLocation: sarifArtifact{URI: f.File},
						Region:           sarifRegion{StartLine: line},
					},
				}}
			}
			run.Results = append(run.Results, entry)
		}
	}

	log := sarifLog{
		Schema:  "https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding sarif: %w", err)
	}
	return string(data), nil
}
