// Package collect gathers the file artifacts a check will analyze.
//
// Candidate paths come from git: in diff-only mode the changed files of the
// current PR or push (with progressively weaker fallbacks down to HEAD~1),
// otherwise all tracked files. Candidates are filtered by include/exclude
// glob patterns (with ** support), binary detection, and a per-file size
// cap, then read with a line-count truncation guard. The candidate list is
// cached for the collector's lifetime so N checks cost one git invocation.
package collect
