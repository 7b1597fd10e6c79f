package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dexterite/prguard/internal/cache"
	"github.com/dexterite/prguard/internal/checks"
	"github.com/dexterite/prguard/internal/collect"
	"github.com/dexterite/prguard/internal/config"
	"github.com/dexterite/prguard/internal/llm"
	"github.com/dexterite/prguard/internal/logging"
	"github.com/dexterite/prguard/internal/output"
	"github.com/dexterite/prguard/internal/redact"
	"github.com/dexterite/prguard/internal/review"
	"github.com/dexterite/prguard/internal/ship"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enabled checks and ship the report",
	Run: func(cmd *cobra.Command, args []string) {
		exitCode = executeRun(cmd)
	},
}

func init() {
	f := runCmd.Flags()
	f.String("config", "", "Path to a config file")
	f.String("model", "", "Model name")
	f.String("api-base-url", "", "OpenAI-compatible API base URL")
	f.String("checks", "", `Checks to run ("all" or comma-separated names)`)
	f.String("custom-checks-dir", "", "Directory of additional check definitions")
	f.Bool("full-scan", false, "Analyze every tracked file instead of the diff")
	f.Bool("diff-only", true, "Analyze only files changed on this branch")
	f.String("severity-threshold", "", "Lowest severity that fails the run (info, low, medium, high, critical)")
	f.Bool("fail-on-degraded", false, "Fail the run when any batch could not be analyzed")
	f.String("output-format", "", "Report format (markdown, json, sarif)")
	f.String("ship-to", "", "Report destinations (github-summary, file, webhook, github-pr-comment)")
	f.String("ship-webhook-url", "", "Webhook URL for the webhook destination")
	f.String("ship-file-path", "", "Base path for the file destination")
	f.Int("max-file-size-kb", 0, "Skip files larger than this")
	f.Int("max-context-tokens", 0, "Model context window used to size batches")
	f.Int("max-batch-files", 0, "Maximum files per batch")
	f.String("exclude-patterns", "", "Extra exclude globs (comma-separated)")
	f.Int("request-delay-ms", 0, "Fixed delay between API calls (adaptive delay is added on 429)")
	f.Int("max-retries", 0, "Attempts per batch before giving up")
	f.Int("run-timeout-seconds", 0, "Abort the run after this many seconds")
	f.Int("parallel-checks", 0, "Checks dispatched concurrently")
	f.String("cache-dir", "", "Cache model responses in this directory")
	f.Bool("debug", false, "Verbose logging")
}

// buildRunOverrides maps changed flags onto config override keys. Only
// flags the user actually set participate, so file and env values survive.
func buildRunOverrides(cmd *cobra.Command) map[string]string {
	m := make(map[string]string)
	add := func(flag, key string) {
		if cmd.Flags().Changed(flag) {
			m[key] = cmd.Flags().Lookup(flag).Value.String()
		}
	}
	add("config", "configFile")
	add("model", "model")
	add("api-base-url", "apiBaseURL")
	add("checks", "checks")
	add("custom-checks-dir", "customChecksDir")
	add("full-scan", "fullScan")
	add("diff-only", "diffOnly")
	add("severity-threshold", "severityThreshold")
	add("fail-on-degraded", "failOnDegraded")
	add("output-format", "outputFormat")
	add("ship-to", "shipTo")
	add("ship-webhook-url", "shipWebhookURL")
	add("ship-file-path", "shipFilePath")
	add("max-file-size-kb", "maxFileSizeKB")
	add("max-context-tokens", "maxContextTokens")
	add("max-batch-files", "maxBatchFiles")
	add("exclude-patterns", "excludePatterns")
	add("request-delay-ms", "requestDelayMS")
	add("max-retries", "maxRetries")
	add("run-timeout-seconds", "runTimeoutSeconds")
	add("parallel-checks", "parallelChecks")
	add("cache-dir", "cacheDir")
	add("debug", "debug")
	return m
}

func executeRun(cmd *cobra.Command) int {
	// Local runs keep credentials in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(buildRunOverrides(cmd))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	logging.Init(logging.Level(level), "text")
	log := logging.New("cli")

	if err := config.Validate(cfg); err != nil {
		log.Error("invalid configuration", "error", err)
		if errors.Is(err, config.ErrMissingAPIKey) {
			return ExitAuthError
		}
		return ExitUsageError
	}

	defs, err := checks.Load(cfg)
	if err != nil {
		log.Error("loading checks", "error", err)
		return ExitUsageError
	}
	if len(defs) == 0 {
		log.Warn("no checks enabled, nothing to do")
		if err := ship.WriteOutputs(0, 0, "", ExitSuccess); err != nil {
			log.Warn("writing step outputs failed", "error", err)
		}
		return ExitSuccess
	}
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}

	ctx := context.Background()
	if cfg.RunTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RunTimeoutSeconds)*time.Second)
		defer cancel()
	}

	throttle := llm.NewThrottle(time.Duration(cfg.RequestDelayMS) * time.Millisecond)
	client := llm.NewClient(llm.ClientOptions{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.APIBaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		Throttle:    throttle,
		Logger:      logging.New("llm"),
	})

	var analyzer review.Analyzer = client
	if cfg.CacheDir != "" {
		store, err := cache.New(cfg.CacheDir)
		if err != nil {
			log.Warn("response cache disabled", "error", err)
		} else {
			analyzer = cache.Wrap(client, store, cfg.Model, logging.New("cache"))
		}
	}

	runner := review.NewRunner(analyzer, throttle, collect.New(".", cfg.DiffOnly), review.Options{
		MaxContextTokens: cfg.MaxContextTokens,
		MaxBatchFiles:    cfg.MaxBatchFiles,
		MaxFileSizeKB:    cfg.MaxFileSizeKB,
		ExcludePatterns:  cfg.ExcludePatterns,
		ParallelChecks:   cfg.ParallelChecks,
	}, logging.New("review"))

	log.Info("starting review",
		"model", cfg.Model,
		"checks", strings.Join(names, ","),
		"full_scan", cfg.FullScan,
		"threshold", cfg.SeverityThreshold)

	report, runErr := runner.Run(ctx, defs)

	formatted, err := output.Format(report, cfg.OutputFormat, output.Meta{Model: cfg.Model, Checks: names})
	if err != nil {
		log.Error("formatting report", "error", err)
		return ExitRuntimeError
	}
	safe := redact.Sanitize(formatted, cfg.APIKey, cfg.GitHubToken)

	// Shipping uses a fresh context: a timed-out run still delivers its
	// partial report.
	reportPath := ship.Ship(context.Background(), cfg.ShipTo, ship.Request{
		Report:      safe,
		Format:      cfg.OutputFormat,
		Results:     report.Results,
		FilePath:    cfg.ShipFilePath,
		WebhookURL:  cfg.ShipWebhookURL,
		GitHubToken: cfg.GitHubToken,
	}, logging.New("ship"))

	threshold := review.ParseSeverity(cfg.SeverityThreshold)
	over := report.CountAtLeast(threshold)

	code := ExitSuccess
	switch {
	case runErr != nil:
		code = ExitRuntimeError
	case over > 0:
		code = ExitFindings
	case cfg.FailOnDegraded && report.Degraded():
		code = ExitFindings
	}

	if err := ship.WriteOutputs(report.TotalFindings, report.CriticalFindings, reportPath, code); err != nil {
		log.Warn("writing step outputs failed", "error", err)
	}

	log.Info("review complete",
		"findings", report.TotalFindings,
		"critical", report.CriticalFindings,
		"failed_batches", report.FailedBatches,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	switch {
	case runErr != nil:
		log.Error("run aborted", "error", runErr)
	case over > 0:
		log.Error("findings at or above severity threshold", "threshold", threshold, "count", over)
	case code == ExitFindings:
		log.Error("run degraded and fail-on-degraded is set", "failed_batches", report.FailedBatches)
	}
	return code
}
