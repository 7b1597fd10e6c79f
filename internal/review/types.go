package review

import (
	"strings"
	"time"

	"github.com/dexterite/prguard/internal/llm"
)

// Severity is the five-level finding vocabulary.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity normalizes a model-supplied severity string. Anything
// outside the vocabulary maps to info rather than being dropped.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := severityRank[sev]; ok {
		return sev
	}
	return SeverityInfo
}

// AtLeast reports whether s is at or above threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// Finding is one reported issue. Check is attached during aggregation,
// never trusted from the model.
type Finding struct {
	Check       string   `json:"check"`
	File        string   `json:"file"`
	Line        int      `json:"line"`
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
}

// BatchFailure records one batch that could not be analyzed.
type BatchFailure struct {
	Batch int      `json:"batch"`
	Files []string `json:"files"`
	Error string   `json:"error"`
}

// CheckResult is the outcome of one check: its findings in batch order
// plus a failure marker for every batch that was given up on.
type CheckResult struct {
	Check         string         `json:"check"`
	FilesAnalyzed int            `json:"files_analyzed"`
	Batches       int            `json:"batches"`
	Findings      []Finding      `json:"findings"`
	Failures      []BatchFailure `json:"failures,omitempty"`
	Summary       string         `json:"summary"`
}

// Degraded reports whether any batch of this check failed.
func (r *CheckResult) Degraded() bool { return len(r.Failures) > 0 }

// Report is the aggregate of all check results plus run metadata.
type Report struct {
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Results          []CheckResult     `json:"results"`
	TotalFindings    int               `json:"total_findings"`
	CriticalFindings int               `json:"critical_findings"`
	FailedBatches    int               `json:"failed_batches"`
	Throttle         llm.ThrottleStats `json:"-"`
}

// Degraded reports whether any batch in the whole run failed.
func (r *Report) Degraded() bool { return r.FailedBatches > 0 }

// CountAtLeast counts findings at or above threshold across all checks.
func (r *Report) CountAtLeast(threshold Severity) int {
	n := 0
	for _, cr := range r.Results {
		for _, f := range cr.Findings {
			if f.Severity.AtLeast(threshold) {
				n++
			}
		}
	}
	return n
}
