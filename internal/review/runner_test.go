package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dexterite/prguard/internal/checks"
	"github.com/dexterite/prguard/internal/collect"
)

type fakeSource struct {
	files []collect.File
	err   error
}

func (s *fakeSource) Collect(ctx context.Context, opts collect.Options) ([]collect.File, error) {
	return s.files, s.err
}

// scriptedClient answers each Analyze call via respond, keyed by the first
// file path in the user message.
type scriptedClient struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, system, user string) (string, error)
}

func (c *scriptedClient) Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	content, err := c.respond(call, system, user)
	if err != nil {
		return "", err
	}
	if accept != nil {
		if aerr := accept(content); aerr != nil {
			return "", aerr
		}
	}
	return content, nil
}

func findingJSON(file, severity, title string) string {
	return fmt.Sprintf(`{"file": %q, "line": 1, "severity": %q, "category": "c", "title": %q, "description": "d", "suggestion": "s"}`,
		file, severity, title)
}

func responseJSON(findings ...string) string {
	return fmt.Sprintf(`{"findings": [%s], "summary": "done"}`, strings.Join(findings, ","))
}

func testOpts() Options {
	return Options{MaxContextTokens: 100000, MaxBatchFiles: 10, ParallelChecks: 1}
}

func TestRunnerSingleCheck(t *testing.T) {
	src := &fakeSource{files: []collect.File{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b"},
	}}
	client := &scriptedClient{respond: func(call int, system, user string) (string, error) {
		if system != "find bugs" {
			t.Errorf("system prompt = %q", system)
		}
		if !strings.Contains(user, "### FILE: a.go") || !strings.Contains(user, "### FILE: b.go") {
			t.Errorf("user message missing file blocks:\n%s", user)
		}
		return responseJSON(findingJSON("a.go", "critical", "Bad")), nil
	}}

	r := NewRunner(client, nil, src, testOpts(), nil)
	report, err := r.Run(context.Background(), []checks.Definition{
		{Name: "code-quality", Prompt: "find bugs", FilePatterns: []string{"**/*"}},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(report.Results))
	}
	res := report.Results[0]
	if res.FilesAnalyzed != 2 || res.Batches != 1 {
		t.Errorf("FilesAnalyzed = %d, Batches = %d, want 2 and 1", res.FilesAnalyzed, res.Batches)
	}
	if len(res.Findings) != 1 || res.Findings[0].Check != "code-quality" {
		t.Fatalf("Findings = %+v, want one tagged code-quality", res.Findings)
	}
	if report.TotalFindings != 1 || report.CriticalFindings != 1 {
		t.Errorf("totals = %d/%d critical, want 1/1", report.TotalFindings, report.CriticalFindings)
	}
	if report.Degraded() {
		t.Error("Degraded() = true, want false")
	}
}

func TestRunnerBatchFailureIsolated(t *testing.T) {
	src := &fakeSource{files: []collect.File{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b"},
	}}
	client := &scriptedClient{respond: func(call int, system, user string) (string, error) {
		if strings.Contains(user, "### FILE: a.go") {
			return "", errors.New("request failed after 5 attempts: rate limited (429)")
		}
		return responseJSON(findingJSON("b.go", "high", "Survivor")), nil
	}}

	opts := testOpts()
	opts.MaxBatchFiles = 1
	r := NewRunner(client, nil, src, opts, nil)
	report, err := r.Run(context.Background(), []checks.Definition{{Name: "sast", Prompt: "p"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := report.Results[0]
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %+v, want 1", res.Failures)
	}
	if res.Failures[0].Batch != 1 {
		t.Errorf("failed batch = %d, want 1", res.Failures[0].Batch)
	}
	if diff := cmp.Diff([]string{"a.go"}, res.Failures[0].Files); diff != "" {
		t.Errorf("failure files mismatch (-want +got):\n%s", diff)
	}
	if len(res.Findings) != 1 || res.Findings[0].Title != "Survivor" {
		t.Errorf("Findings = %+v, want the sibling batch's finding", res.Findings)
	}
	if !report.Degraded() || report.FailedBatches != 1 {
		t.Errorf("Degraded = %v, FailedBatches = %d, want true and 1", report.Degraded(), report.FailedBatches)
	}
	if !strings.Contains(res.Summary, "1 batch(es) failed") {
		t.Errorf("Summary = %q, want degraded note", res.Summary)
	}
}

func TestRunnerFindingsKeepBatchOrder(t *testing.T) {
	src := &fakeSource{files: []collect.File{
		{Path: "a.go", Content: "a"},
		{Path: "b.go", Content: "b"},
		{Path: "c.go", Content: "c"},
	}}
	client := &scriptedClient{respond: func(call int, system, user string) (string, error) {
		for _, p := range []string{"a.go", "b.go", "c.go"} {
			if strings.Contains(user, "### FILE: "+p) {
				return responseJSON(findingJSON(p, "low", p)), nil
			}
		}
		return "", errors.New("unexpected batch")
	}}

	opts := testOpts()
	opts.MaxBatchFiles = 1
	r := NewRunner(client, nil, src, opts, nil)
	report, err := r.Run(context.Background(), []checks.Definition{{Name: "q", Prompt: "p"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var got []string
	for _, f := range report.Results[0].Findings {
		got = append(got, f.File)
	}
	if diff := cmp.Diff([]string{"a.go", "b.go", "c.go"}, got); diff != "" {
		t.Errorf("finding order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunnerNoMatchingFiles(t *testing.T) {
	client := &scriptedClient{respond: func(int, string, string) (string, error) {
		return "", errors.New("should not be called")
	}}
	r := NewRunner(client, nil, &fakeSource{}, testOpts(), nil)
	report, err := r.Run(context.Background(), []checks.Definition{{Name: "q", Prompt: "p"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := report.Results[0]
	if res.Summary != "No matching files found." {
		t.Errorf("Summary = %q", res.Summary)
	}
	if client.calls != 0 {
		t.Errorf("client called %d times, want 0", client.calls)
	}
}

func TestRunnerCollectFailureMarksCheck(t *testing.T) {
	src := &fakeSource{err: errors.New("not a git repository")}
	client := &scriptedClient{respond: func(int, string, string) (string, error) {
		return "", errors.New("should not be called")
	}}
	r := NewRunner(client, nil, src, testOpts(), nil)
	report, err := r.Run(context.Background(), []checks.Definition{{Name: "q", Prompt: "p"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := report.Results[0]
	if len(res.Failures) != 1 || !strings.Contains(res.Failures[0].Error, "not a git repository") {
		t.Errorf("Failures = %+v, want collection error", res.Failures)
	}
}

func TestRunnerChecksIndependent(t *testing.T) {
	src := &fakeSource{files: []collect.File{{Path: "a.go", Content: "a"}}}
	client := &scriptedClient{respond: func(call int, system, user string) (string, error) {
		if system == "first" {
			return "", errors.New("boom")
		}
		return responseJSON(findingJSON("a.go", "info", "ok")), nil
	}}

	opts := testOpts()
	opts.ParallelChecks = 2
	r := NewRunner(client, nil, src, opts, nil)
	report, err := r.Run(context.Background(), []checks.Definition{
		{Name: "one", Prompt: "first"},
		{Name: "two", Prompt: "second"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Results stay in definition order regardless of scheduling.
	if report.Results[0].Check != "one" || report.Results[1].Check != "two" {
		t.Fatalf("result order = %q, %q", report.Results[0].Check, report.Results[1].Check)
	}
	if !report.Results[0].Degraded() {
		t.Error("check one should be degraded")
	}
	if len(report.Results[1].Findings) != 1 {
		t.Errorf("check two findings = %d, want 1", len(report.Results[1].Findings))
	}
}

func TestRunnerCancelledReturnsPartialReport(t *testing.T) {
	src := &fakeSource{files: []collect.File{{Path: "a.go", Content: "a"}}}
	client := &scriptedClient{respond: func(int, string, string) (string, error) {
		return "", errors.New("should not be called")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(client, nil, src, testOpts(), nil)
	report, err := r.Run(ctx, []checks.Definition{{Name: "q", Prompt: "p"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if report == nil {
		t.Fatal("Run() report = nil, want partial report")
	}
	res := report.Results[0]
	if len(res.Failures) != 1 || !strings.Contains(res.Failures[0].Error, "cancelled") {
		t.Errorf("Failures = %+v, want cancellation marker", res.Failures)
	}
	if client.calls != 0 {
		t.Errorf("client called %d times after cancel, want 0", client.calls)
	}
}

func TestRunnerCountAtLeast(t *testing.T) {
	report := &Report{Results: []CheckResult{{
		Findings: []Finding{
			{Severity: SeverityInfo},
			{Severity: SeverityMedium},
			{Severity: SeverityCritical},
		},
	}}}
	if got := report.CountAtLeast(SeverityMedium); got != 2 {
		t.Errorf("CountAtLeast(medium) = %d, want 2", got)
	}
	if got := report.CountAtLeast(SeverityInfo); got != 3 {
		t.Errorf("CountAtLeast(info) = %d, want 3", got)
	}
}
