package collect

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dexterite/prguard/internal/logging"
)

// maxContentLines caps how much of a single file is sent to the model.
const maxContentLines = 2000

// File is one collected artifact: a repository-relative path and its
// content. Immutable once collected.
type File struct {
	Path      string
	Content   string
	Size      int64
	Truncated bool
}

// Options filters the candidate set for one check.
type Options struct {
	IncludePatterns []string
	ExcludePatterns []string
	MaxFileSizeKB   int
}

// Collector yields file artifacts from the repository. The candidate list
// is resolved once and cached; Collect may be called once per check.
type Collector struct {
	repoRoot string
	diffOnly bool

	mu         sync.Mutex
	candidates []string
	resolved   bool
}

// New creates a Collector rooted at repoRoot. With diffOnly set, candidates
// are the changed files of the current PR/push; otherwise all tracked files.
func New(repoRoot string, diffOnly bool) *Collector {
	return &Collector{repoRoot: repoRoot, diffOnly: diffOnly}
}

// Collect returns the sorted, deduplicated files matching opts, with
// contents loaded. Empty result is not an error.
func (c *Collector) Collect(ctx context.Context, opts Options) ([]File, error) {
	candidates, err := c.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	logger := logging.New("collect")
	include := opts.IncludePatterns
	if len(include) == 0 {
		include = []string{"**/*"}
	}
	exclude := append(append([]string{}, defaultExcludes...), opts.ExcludePatterns...)

	skips := map[string]int{}
	seen := map[string]bool{}
	var matched []string
	for _, path := range candidates {
		switch {
		case seen[path]:
			continue
		case binaryExtension(path):
			skips["binary_ext"]++
		case !matchAny(path, include):
			skips["no_pattern_match"]++
		case matchAny(path, exclude):
			skips["excluded"]++
		default:
			seen[path] = true
			matched = append(matched, path)
		}
	}
	sort.Strings(matched)

	var files []File
	for _, path := range matched {
		abs := filepath.Join(c.repoRoot, path)
		info, err := os.Stat(abs)
		if err != nil {
			skips["not_found"]++
			continue
		}
		if opts.MaxFileSizeKB > 0 && info.Size() > int64(opts.MaxFileSizeKB)*1024 {
			skips["too_large"]++
			continue
		}
		f, ok := readFile(path, abs, info.Size())
		if !ok {
			skips["binary_content"]++
			continue
		}
		files = append(files, f)
	}

	if len(skips) > 0 {
		logger.Debug("filtered candidates", "kept", len(files), "skipped", skips)
	}
	return files, nil
}

// Candidates returns the unfiltered candidate path list, cached after the
// first call.
func (c *Collector) Candidates(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.candidates, nil
	}

	var paths []string
	var err error
	if c.diffOnly {
		paths = c.changedFiles(ctx)
	} else {
		paths, err = c.trackedFiles(ctx)
		if err != nil {
			return nil, err
		}
	}

	c.candidates = paths
	c.resolved = true
	return paths, nil
}

// changedFiles tries PR diff, push diff, then HEAD~1, falling back to all
// tracked files when every diff strategy fails.
func (c *Collector) changedFiles(ctx context.Context) []string {
	logger := logging.New("collect")

	if baseRef := os.Getenv("GITHUB_BASE_REF"); baseRef != "" {
		_, _ = c.git(ctx, "fetch", "origin", baseRef, "--depth=1")
		out, err := c.git(ctx, "diff", "--name-only", "--diff-filter=ACMRT", "origin/"+baseRef+"...HEAD")
		if err == nil {
			files := splitLines(out)
			logger.Info("git context: PR diff", "base", baseRef, "changed", len(files))
			return files
		}
	}

	if before := os.Getenv("GITHUB_EVENT_BEFORE"); before != "" && before != strings.Repeat("0", 40) {
		out, err := c.git(ctx, "diff", "--name-only", "--diff-filter=ACMRT", before+"...HEAD")
		if err != nil {
			// Shallow clone may be missing the before commit.
			_, _ = c.git(ctx, "fetch", "origin", before, "--depth=1")
			out, err = c.git(ctx, "diff", "--name-only", "--diff-filter=ACMRT", before+"...HEAD")
		}
		if err == nil {
			files := splitLines(out)
			logger.Info("git context: push diff", "before", short(before), "changed", len(files))
			return files
		}
	}

	if out, err := c.git(ctx, "diff", "--name-only", "--diff-filter=ACMRT", "HEAD~1"); err == nil {
		files := splitLines(out)
		logger.Info("git context: HEAD~1 fallback", "changed", len(files))
		return files
	}

	logger.Warn("all git diff strategies failed; scanning all tracked files")
	all, err := c.trackedFiles(ctx)
	if err != nil {
		logger.Warn("git ls-files failed; no files to analyze", "error", err)
		return nil
	}
	return all
}

func (c *Collector) trackedFiles(ctx context.Context) ([]string, error) {
	out, err := c.git(ctx, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}
	return splitLines(out), nil
}

func (c *Collector) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if c.repoRoot != "" {
		cmd.Dir = c.repoRoot
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// readFile loads a file's content, truncating past maxContentLines and
// rejecting binary content. Unreadable files are reported in-band so the
// model sees why a path is empty rather than the path silently vanishing.
func readFile(path, abs string, size int64) (File, bool) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return File{Path: path, Content: fmt.Sprintf("(error reading file: %v)\n", err)}, true
	}
	if bytes.IndexByte(data[:min(len(data), 8192)], 0) >= 0 {
		return File{}, false
	}

	content := string(data)
	truncated := false
	if n := strings.Count(content, "\n"); n > maxContentLines {
		lines := strings.SplitAfterN(content, "\n", maxContentLines+1)
		content = strings.Join(lines[:maxContentLines], "")
		content += fmt.Sprintf("\n... (truncated, %d more lines)\n", n-maxContentLines)
		truncated = true
	}

	return File{Path: path, Content: content, Size: size, Truncated: truncated}, true
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func short(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
