package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dexterite/prguard/internal/checks"
	"github.com/dexterite/prguard/internal/collect"
	"github.com/dexterite/prguard/internal/llm"
)

// Analyzer is the dispatch surface the runner drives. Satisfied by
// *llm.Client.
type Analyzer interface {
	Analyze(ctx context.Context, system, user string, accept func(string) error) (string, error)
}

// FileSource yields the artifacts matching a check's filters. Satisfied by
// *collect.Collector.
type FileSource interface {
	Collect(ctx context.Context, opts collect.Options) ([]collect.File, error)
}

// Options bound a run's batching and scheduling behavior.
type Options struct {
	MaxContextTokens int
	MaxBatchFiles    int
	MaxFileSizeKB    int
	ExcludePatterns  []string

	// ParallelChecks caps how many checks dispatch concurrently. Batches
	// within one check always run sequentially so the shared throttle's
	// delay accounting stays meaningful. Values below 1 mean sequential.
	ParallelChecks int
}

// Runner executes every enabled check and aggregates the results.
type Runner struct {
	client   Analyzer
	throttle *llm.Throttle
	files    FileSource
	opts     Options
	log      *slog.Logger
}

// NewRunner wires a runner. throttle may be nil when the caller does not
// want throttle statistics on the report.
func NewRunner(client Analyzer, throttle *llm.Throttle, files FileSource, opts Options, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{client: client, throttle: throttle, files: files, opts: opts, log: log}
}

// Run executes defs and aggregates their results into a Report. Check
// results appear in definition order regardless of scheduling. A cancelled
// run still returns the partial report alongside the context error.
func (r *Runner) Run(ctx context.Context, defs []checks.Definition) (*Report, error) {
	started := time.Now()
	results := make([]CheckResult, len(defs))

	limit := r.opts.ParallelChecks
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			results[i] = r.runCheck(ctx, def)
			return nil
		})
	}
	g.Wait()

	report := &Report{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Results:    results,
	}
	for _, cr := range results {
		report.TotalFindings += len(cr.Findings)
		report.FailedBatches += len(cr.Failures)
		for _, f := range cr.Findings {
			if f.Severity == SeverityCritical {
				report.CriticalFindings++
			}
		}
	}
	if r.throttle != nil {
		report.Throttle = r.throttle.Stats()
		if report.Throttle.TotalThrottled > 0 {
			r.log.Info("throttle stats",
				"total_calls", report.Throttle.TotalCalls,
				"total_throttled", report.Throttle.TotalThrottled,
				"effective_delay", report.Throttle.EffectiveDelay)
		}
	}
	return report, ctx.Err()
}

// runCheck collects the check's files, batches them, and dispatches each
// batch in order. Batch failures are recorded, never propagated.
func (r *Runner) runCheck(ctx context.Context, def checks.Definition) CheckResult {
	log := r.log.With("check", def.Name)
	res := CheckResult{Check: def.Name}

	files, err := r.files.Collect(ctx, collect.Options{
		IncludePatterns: def.FilePatterns,
		ExcludePatterns: append(append([]string{}, r.opts.ExcludePatterns...), def.ExcludePatterns...),
		MaxFileSizeKB:   r.opts.MaxFileSizeKB,
	})
	if err != nil {
		res.Failures = append(res.Failures, BatchFailure{Error: fmt.Sprintf("collecting files: %v", err)})
		res.Summary = "File collection failed."
		return res
	}
	if len(files) == 0 {
		res.Summary = "No matching files found."
		return res
	}
	res.FilesAnalyzed = len(files)

	budget := EffectiveBudget(r.opts.MaxContextTokens)
	batches := BuildBatches(files, budget, r.opts.MaxBatchFiles)
	res.Batches = len(batches)
	log.Info("check starting", "files", len(files), "batches", len(batches), "token_budget", budget)

	for i, batch := range batches {
		if ctx.Err() != nil {
			res.Failures = append(res.Failures, BatchFailure{
				Batch: i + 1,
				Files: batch.Paths(),
				Error: "run cancelled before dispatch",
			})
			continue
		}
		if batch.Oversized {
			log.Warn("single file exceeds token budget, dispatching alone",
				"batch", i+1, "file", batch.Files[0].Path, "estimated_tokens", batch.Tokens)
		}

		allowed := make(map[string]bool, len(batch.Files))
		for _, f := range batch.Files {
			allowed[f.Path] = true
		}
		user := BuildUserMessage(batch.Files)

		content, err := r.client.Analyze(ctx, def.Prompt, user, func(c string) error {
			_, perr := ParseResponse(c, allowed)
			return perr
		})
		if err != nil {
			log.Warn("batch failed", "batch", i+1, "of", len(batches), "error", err)
			res.Failures = append(res.Failures, BatchFailure{
				Batch: i + 1,
				Files: batch.Paths(),
				Error: err.Error(),
			})
			continue
		}

		parsed, perr := ParseResponse(content, allowed)
		if perr != nil {
			// Unreachable when accept ran, kept as a guard for custom clients.
			res.Failures = append(res.Failures, BatchFailure{
				Batch: i + 1,
				Files: batch.Paths(),
				Error: perr.Error(),
			})
			continue
		}
		if parsed.Dropped > 0 {
			log.Warn("dropped findings referencing files outside the batch",
				"batch", i+1, "dropped", parsed.Dropped)
		}
		for j := range parsed.Findings {
			parsed.Findings[j].Check = def.Name
		}
		res.Findings = append(res.Findings, parsed.Findings...)
		log.Info("batch analyzed", "batch", i+1, "of", len(batches), "findings", len(parsed.Findings))
	}

	res.Summary = fmt.Sprintf("Analyzed %d file(s) in %d batch(es), found %d issue(s).",
		res.FilesAnalyzed, res.Batches, len(res.Findings))
	if res.Degraded() {
		res.Summary += fmt.Sprintf(" %d batch(es) failed.", len(res.Failures))
	}
	return res
}
