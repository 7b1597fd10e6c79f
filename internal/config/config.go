package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by Validate when no credential is configured.
// Callers map it to an authentication exit code rather than a usage error.
var ErrMissingAPIKey = errors.New("missing required input: api-key (set PRGUARD_API_KEY)")

// BuiltinChecks lists the checks shipped with prguard, in execution order.
var BuiltinChecks = []string{
	"code-quality",
	"sast",
	"secret-detection",
	"iac-security",
	"container-security",
}

// SeverityLevels is the controlled severity vocabulary, least severe first.
var SeverityLevels = []string{"info", "low", "medium", "high", "critical"}

// CheckOverride holds the per-check settings a user may set in the config
// file. Enabled is a pointer so "unset" can be told apart from false.
type CheckOverride struct {
	Enabled           *bool    `yaml:"enabled"`
	FilePatterns      []string `yaml:"file_patterns"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	ExtraInstructions string   `yaml:"extra_instructions"`
}

// Config is the effective run configuration.
type Config struct {
	APIKey     string `yaml:"-"`
	APIBaseURL string `yaml:"api-base-url"`
	Model      string `yaml:"model"`

	EnabledChecks   string `yaml:"enabled-checks"` // "all" or comma-separated names
	CustomChecksDir string `yaml:"custom-checks-dir"`

	FullScan bool `yaml:"full-scan"`
	DiffOnly bool `yaml:"diff-only"`

	SeverityThreshold string `yaml:"severity-threshold"`
	FailOnDegraded    bool   `yaml:"fail-on-degraded"`

	OutputFormat   string `yaml:"output-format"`
	ShipTo         string `yaml:"ship-to"`
	ShipWebhookURL string `yaml:"ship-webhook-url"`
	ShipFilePath   string `yaml:"ship-file-path"`

	MaxFileSizeKB    int      `yaml:"max-file-size-kb"`
	MaxContextTokens int      `yaml:"max-context-tokens"`
	MaxBatchFiles    int      `yaml:"max-batch-files"`
	ExcludePatterns  []string `yaml:"exclude-patterns"`

	RequestDelayMS    int     `yaml:"request-delay-ms"`
	MaxRetries        int     `yaml:"max-retries"`
	RunTimeoutSeconds int     `yaml:"run-timeout-seconds"`
	ParallelChecks    int     `yaml:"parallel-checks"`
	Temperature       float64 `yaml:"temperature"`

	// CacheDir enables on-disk response caching when non-empty.
	CacheDir string `yaml:"cache-dir"`

	GitHubToken string `yaml:"-"`
	Debug       bool   `yaml:"debug"`

	// CheckOverrides keys the per-check user overrides by check name.
	CheckOverrides map[string]CheckOverride `yaml:"checks"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		APIBaseURL:        "https://api.openai.com/v1",
		Model:             "gpt-4o",
		EnabledChecks:     "all",
		DiffOnly:          true,
		SeverityThreshold: "low",
		OutputFormat:      "markdown",
		ShipTo:            "github-summary",
		ShipFilePath:      "pr-guard-report",
		MaxFileSizeKB:     100,
		MaxContextTokens:  100000,
		MaxBatchFiles:     50,
		MaxRetries:        5,
		ParallelChecks:    1,
		Temperature:       0.1,
	}
}

// candidateFiles are the config file names probed in order when no explicit
// path is given.
var candidateFiles = []string{
	"pr-guard.config.yml",
	"pr-guard.config.yaml",
	".pr-guard.yml",
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-empty values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	path := os.Getenv("PRGUARD_CONFIG_FILE")
	if v, ok := overrides["configFile"]; ok && v != "" {
		path = v
	}
	if err := mergeFile(&cfg, path); err != nil {
		return Config{}, err
	}
	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	// A full scan always looks at every tracked file.
	if cfg.FullScan {
		cfg.DiffOnly = false
	}

	return cfg, nil
}

// mergeFile loads YAML config from path, or from the first candidate file
// found in the working directory when path is empty. A missing file is not
// an error; a malformed one is.
func mergeFile(cfg *Config, path string) error {
	if path == "" {
		for _, c := range candidateFiles {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			switch strings.ToLower(v) {
			case "true", "1", "yes":
				*dst = true
			default:
				*dst = false
			}
		}
	}

	setStr("PRGUARD_API_KEY", &cfg.APIKey)
	setStr("PRGUARD_API_BASE_URL", &cfg.APIBaseURL)
	setStr("PRGUARD_MODEL", &cfg.Model)
	setStr("PRGUARD_CHECKS", &cfg.EnabledChecks)
	setStr("PRGUARD_CUSTOM_CHECKS_DIR", &cfg.CustomChecksDir)
	setBool("PRGUARD_FULL_SCAN", &cfg.FullScan)
	setBool("PRGUARD_DIFF_ONLY", &cfg.DiffOnly)
	setStr("PRGUARD_SEVERITY_THRESHOLD", &cfg.SeverityThreshold)
	setBool("PRGUARD_FAIL_ON_DEGRADED", &cfg.FailOnDegraded)
	setStr("PRGUARD_OUTPUT_FORMAT", &cfg.OutputFormat)
	setStr("PRGUARD_SHIP_TO", &cfg.ShipTo)
	setStr("PRGUARD_SHIP_WEBHOOK_URL", &cfg.ShipWebhookURL)
	setStr("PRGUARD_SHIP_FILE_PATH", &cfg.ShipFilePath)
	setInt("PRGUARD_MAX_FILE_SIZE_KB", &cfg.MaxFileSizeKB)
	setInt("PRGUARD_MAX_CONTEXT_TOKENS", &cfg.MaxContextTokens)
	setInt("PRGUARD_MAX_BATCH_FILES", &cfg.MaxBatchFiles)
	setInt("PRGUARD_REQUEST_DELAY_MS", &cfg.RequestDelayMS)
	setInt("PRGUARD_MAX_RETRIES", &cfg.MaxRetries)
	setInt("PRGUARD_RUN_TIMEOUT_SECONDS", &cfg.RunTimeoutSeconds)
	setInt("PRGUARD_PARALLEL_CHECKS", &cfg.ParallelChecks)
	setStr("PRGUARD_CACHE_DIR", &cfg.CacheDir)
	setStr("PRGUARD_GITHUB_TOKEN", &cfg.GitHubToken)
	setBool("PRGUARD_DEBUG", &cfg.Debug)

	if v := os.Getenv("PRGUARD_EXCLUDE_PATTERNS"); v != "" {
		cfg.ExcludePatterns = SplitCSV(v)
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	str := func(key string, dst *string) {
		if v, ok := overrides[key]; ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := overrides[key]; ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := overrides[key]; ok && v != "" {
			*dst = v == "true"
		}
	}

	str("model", &cfg.Model)
	str("apiBaseURL", &cfg.APIBaseURL)
	str("checks", &cfg.EnabledChecks)
	str("customChecksDir", &cfg.CustomChecksDir)
	boolean("fullScan", &cfg.FullScan)
	boolean("diffOnly", &cfg.DiffOnly)
	str("severityThreshold", &cfg.SeverityThreshold)
	boolean("failOnDegraded", &cfg.FailOnDegraded)
	str("outputFormat", &cfg.OutputFormat)
	str("shipTo", &cfg.ShipTo)
	str("shipWebhookURL", &cfg.ShipWebhookURL)
	str("shipFilePath", &cfg.ShipFilePath)
	num("maxFileSizeKB", &cfg.MaxFileSizeKB)
	num("maxContextTokens", &cfg.MaxContextTokens)
	num("maxBatchFiles", &cfg.MaxBatchFiles)
	num("requestDelayMS", &cfg.RequestDelayMS)
	num("maxRetries", &cfg.MaxRetries)
	num("runTimeoutSeconds", &cfg.RunTimeoutSeconds)
	num("parallelChecks", &cfg.ParallelChecks)
	str("cacheDir", &cfg.CacheDir)
	if v, ok := overrides["excludePatterns"]; ok && v != "" {
		cfg.ExcludePatterns = append(cfg.ExcludePatterns, SplitCSV(v)...)
	}
	boolean("debug", &cfg.Debug)
}

// Validate reports the fatal-configuration conditions that must be surfaced
// before any dispatch begins.
func Validate(cfg Config) error {
	if cfg.APIKey == "" {
		return ErrMissingAPIKey
	}
	if !contains(SeverityLevels, cfg.SeverityThreshold) {
		return fmt.Errorf("invalid severity-threshold %q (want one of %s)",
			cfg.SeverityThreshold, strings.Join(SeverityLevels, ", "))
	}
	switch cfg.OutputFormat {
	case "markdown", "json", "sarif":
	default:
		return fmt.Errorf("invalid output-format %q (want markdown, json, or sarif)", cfg.OutputFormat)
	}
	if cfg.MaxContextTokens <= 0 {
		return fmt.Errorf("max-context-tokens must be positive, got %d", cfg.MaxContextTokens)
	}
	if cfg.MaxBatchFiles <= 0 {
		return fmt.Errorf("max-batch-files must be positive, got %d", cfg.MaxBatchFiles)
	}
	if cfg.ParallelChecks < 1 {
		return fmt.Errorf("parallel-checks must be at least 1, got %d", cfg.ParallelChecks)
	}
	return nil
}

// EnabledCheckNames resolves the enabled-checks setting against the builtin
// list and user overrides. "all" selects every builtin check; otherwise the
// value is a comma-separated list. Overrides may disable a selected check or
// enable an extra one.
func EnabledCheckNames(cfg Config) []string {
	var enabled []string
	if cfg.EnabledChecks == "all" || cfg.EnabledChecks == "" {
		enabled = append(enabled, BuiltinChecks...)
	} else {
		enabled = SplitCSV(cfg.EnabledChecks)
	}

	// Map iteration order is random; gather additions separately and sort
	// them so the resolved check order is stable run to run.
	var added []string
	for name, ov := range cfg.CheckOverrides {
		if ov.Enabled == nil {
			continue
		}
		if *ov.Enabled {
			if !contains(enabled, name) {
				added = append(added, name)
			}
		} else {
			enabled = remove(enabled, name)
		}
	}
	sort.Strings(added)
	return append(enabled, added...)
}

// SplitCSV splits a comma-separated value into trimmed non-empty parts.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
