// Package redact strips credential-shaped strings from report text before
// it leaves the process. Findings quote source code, and source code
// sometimes contains the very secrets a check was looking for.
package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// minLiteralLen guards against redacting trivially short strings that
// would shred unrelated text.
const minLiteralLen = 8

var patterns = []*regexp.Regexp{
	// Generic assignments: api_key = "...", password: ...
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|password|passwd|token|bearer|auth)\s*[:=]\s*["']?[\w+/=\-]{8,}`),
	// Vendor-prefixed assignments.
	regexp.MustCompile(`(?i)(aws|azure|gcp|github|slack|sendgrid|twilio)[_-]?(key|secret|token)\s*[:=]\s*["']?[\w+/=\-]{8,}`),
	// Key material and well-known token shapes.
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`gho_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{48}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`xox[bprs]-[A-Za-z0-9\-]+`),
	regexp.MustCompile(`SG\.[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{43}`),
}

// Sanitize replaces credential-shaped substrings and every supplied
// literal secret with a placeholder. Literals shorter than eight
// characters are ignored.
func Sanitize(text string, secrets ...string) string {
	for _, p := range patterns {
		text = p.ReplaceAllString(text, placeholder)
	}
	for _, s := range secrets {
		if len(s) >= minLiteralLen {
			text = strings.ReplaceAll(text, s, placeholder)
		}
	}
	return text
}
