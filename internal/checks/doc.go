// Package checks loads check definitions: the named review tasks prguard
// runs against a repository.
//
// A check is a directory holding a prompt.md (the system prompt sent to the
// model) and an optional config.yml (file patterns and excludes). The five
// builtin checks are embedded in the binary; additional checks are
// discovered in the configured custom-checks-dir, and a custom check with
// the same name as a builtin replaces its prompt. User config-file
// overrides can disable a check, add exclude patterns, or append extra
// instructions to its prompt.
package checks
