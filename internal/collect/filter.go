package collect

import (
	"path"
	"regexp"
	"strings"
	"sync"
)

// defaultExcludes are always applied regardless of check configuration.
var defaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/venv/**",
	"**/.venv/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
	"**/.next/**",
	"**/coverage/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
	"**/*.lock",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/poetry.lock",
	"**/Pipfile.lock",
	"**/go.sum",
	"**/composer.lock",
	"**/.terraform/**",
	"**/.terragrunt-cache/**",
}

// binaryExtensions are skipped without reading the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".svg": true, ".webp": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".rar": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".pyc": true, ".pyo": true, ".class": true, ".o": true, ".obj": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".wasm": true, ".parquet": true, ".avro": true,
}

func binaryExtension(p string) bool {
	name := strings.ToLower(path.Base(p))
	// Compound extensions are not visible to path.Ext.
	if strings.HasSuffix(name, ".min.js") || strings.HasSuffix(name, ".min.css") {
		return true
	}
	return binaryExtensions[path.Ext(name)]
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

// matchAny reports whether p matches at least one glob pattern.
func matchAny(p string, patterns []string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	for _, pattern := range patterns {
		if globRegexp(pattern).MatchString(p) {
			return true
		}
	}
	return false
}

// globRegexp compiles a glob pattern into an anchored regexp.
// Supported: `*` (any run within a path segment), `?` (one character within
// a segment), `**/` (any directory prefix, including none), and a trailing
// or infix `**` (any run across segments). path.Match cannot express `**`,
// hence the translation.
func globRegexp(pattern string) *regexp.Regexp {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re
	}

	pat := strings.ReplaceAll(pattern, "\\", "/")
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pat); {
		c := pat[i]
		switch {
		case c == '*' && strings.HasPrefix(pat[i:], "**/"):
			b.WriteString("(?:.+/)?")
			i += 3
		case c == '*' && strings.HasPrefix(pat[i:], "**"):
			b.WriteString(".*")
			i += 2
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	b.WriteString("$")

	re := regexp.MustCompile(b.String())
	regexCache[pattern] = re
	return re
}
