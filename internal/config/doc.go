// Package config loads and merges prguard configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PRGUARD_API_KEY, PRGUARD_MODEL, PRGUARD_CHECKS, etc.)
//  3. YAML config file (pr-guard.config.yml, pr-guard.config.yaml, or
//     .pr-guard.yml in the working directory, or PRGUARD_CONFIG_FILE)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Validate] to catch fatal
// configuration errors before any API call is made, and [EnabledCheckNames]
// to resolve the enabled check set against user overrides.
package config
