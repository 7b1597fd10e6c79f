package ship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// githubAPI is a variable so tests can point it at a local server.
var githubAPI = "https://api.github.com"

// maxCommentBody stays under GitHub's 65536-character comment limit.
const maxCommentBody = 60_000

func toPRComment(ctx context.Context, req Request) error {
	if req.GitHubToken == "" {
		return fmt.Errorf("github-token not provided")
	}
	repo := os.Getenv("GITHUB_REPOSITORY")
	pr := prNumber(os.Getenv("GITHUB_REF"))
	if repo == "" || pr == "" {
		return fmt.Errorf("not in a pull request context")
	}

	body := req.Report
	if len(body) > maxCommentBody {
		body = body[:maxCommentBody] + "\n\n_… report truncated_"
	}
	body = "<details>\n<summary>\U0001f6e1️ PR Guard AI Report</summary>\n\n" + body + "\n\n</details>"

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", githubAPI, repo, pr)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.GitHubToken)
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("comment on #%s failed (%d): %s", pr, resp.StatusCode, snippet)
	}
	return nil
}

// prNumber extracts the pull request number from a refs/pull/N/merge ref.
func prNumber(ref string) string {
	parts := strings.Split(ref, "/")
	for i, p := range parts {
		if p == "pull" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
