// Package ship delivers a rendered report to its configured destinations:
// the GitHub Actions step summary, a local file, a webhook, or a pull
// request comment. Destinations are independent; one failing never blocks
// the others.
package ship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dexterite/prguard/internal/output"
	"github.com/dexterite/prguard/internal/review"
)

// webhookReportCap bounds the report text embedded in a webhook payload.
const webhookReportCap = 50_000

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Request is everything one run produces for delivery.
type Request struct {
	Report  string // rendered and sanitized
	Format  string // decides the file extension
	Results []review.CheckResult

	FilePath    string // base path for the file destination
	WebhookURL  string
	GitHubToken string
}

// Ship dispatches to every comma-separated destination in destinations.
// It returns the path of the written report file, empty when the file
// destination was not used. Unknown destinations are logged and skipped.
func Ship(ctx context.Context, destinations string, req Request, log *slog.Logger) string {
	if log == nil {
		log = slog.Default()
	}
	reportPath := ""
	for _, dest := range strings.Split(destinations, ",") {
		switch strings.TrimSpace(dest) {
		case "github-summary":
			toGitHubSummary(req.Report, log)
		case "file":
			if p, err := toFile(req); err != nil {
				log.Warn("writing report file failed", "error", err)
			} else {
				reportPath = p
				log.Info("report written", "path", p)
			}
		case "webhook":
			if err := toWebhook(ctx, req); err != nil {
				log.Warn("webhook delivery failed", "error", err)
			} else {
				log.Info("report shipped to webhook")
			}
		case "github-pr-comment":
			if err := toPRComment(ctx, req); err != nil {
				log.Warn("pull request comment failed", "error", err)
			} else {
				log.Info("pull request comment posted")
			}
		case "":
		default:
			log.Warn("unknown ship destination, skipped", "destination", dest)
		}
	}
	return reportPath
}

// toGitHubSummary appends to $GITHUB_STEP_SUMMARY, or prints the report
// when running outside GitHub Actions.
func toGitHubSummary(report string, log *slog.Logger) {
	summaryFile := os.Getenv("GITHUB_STEP_SUMMARY")
	if summaryFile == "" {
		fmt.Println(report)
		return
	}
	f, err := os.OpenFile(summaryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn("could not write step summary", "error", err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, report); err != nil {
		log.Warn("could not write step summary", "error", err)
	}
}

func toFile(req Request) (string, error) {
	base := req.FilePath
	if base == "" {
		base = "pr-guard-report"
	}
	path := base + "." + output.Extension(req.Format)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, []byte(req.Report), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type webhookPayload struct {
	Source        string               `json:"source"`
	Repository    string               `json:"repository"`
	Ref           string               `json:"ref"`
	SHA           string               `json:"sha"`
	RunID         string               `json:"run_id"`
	TotalFindings int                  `json:"total_findings"`
	Results       []review.CheckResult `json:"results"`
	Report        string               `json:"report"`
}

func toWebhook(ctx context.Context, req Request) error {
	if req.WebhookURL == "" {
		return fmt.Errorf("ship-to includes %q but ship-webhook-url is empty", "webhook")
	}

	total := 0
	for _, r := range req.Results {
		total += len(r.Findings)
	}
	report := req.Report
	if len(report) > webhookReportCap {
		report = report[:webhookReportCap]
	}
	body, err := json.Marshal(webhookPayload{
		Source:        "pr-guard-ai",
		Repository:    os.Getenv("GITHUB_REPOSITORY"),
		Ref:           os.Getenv("GITHUB_REF"),
		SHA:           os.Getenv("GITHUB_SHA"),
		RunID:         os.Getenv("GITHUB_RUN_ID"),
		TotalFindings: total,
		Results:       req.Results,
		Report:        report,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "pr-guard-ai/1.0")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// WriteOutputs appends the standard step outputs to $GITHUB_OUTPUT for
// downstream workflow steps. A no-op outside GitHub Actions.
func WriteOutputs(findings, critical int, reportPath string, exitCode int) error {
	outputFile := os.Getenv("GITHUB_OUTPUT")
	if outputFile == "" {
		return nil
	}
	f, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "findings-count=%d\ncritical-count=%d\nreport-path=%s\nexit-code=%d\n",
		findings, critical, reportPath, exitCode)
	return err
}
