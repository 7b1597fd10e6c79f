package checks

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dexterite/prguard/internal/config"
	"github.com/dexterite/prguard/internal/logging"
)

//go:embed builtin
var builtinFS embed.FS

// Definition is a fully resolved check: its prompt and file filters.
// Immutable once loaded.
type Definition struct {
	Name            string
	Prompt          string
	FilePatterns    []string
	ExcludePatterns []string
}

// fileConfig mirrors a check's config.yml.
type fileConfig struct {
	FilePatterns    []string `yaml:"file_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// Load resolves every enabled check into a Definition. Checks without a
// prompt are skipped with a warning rather than failing the run; an empty
// result with no fatal error means there is nothing to do.
func Load(cfg config.Config) ([]Definition, error) {
	logger := logging.New("checks")

	enabled := config.EnabledCheckNames(cfg)

	// Checks found in the custom directory are enabled automatically unless
	// an override disabled them above.
	for _, name := range Discover(cfg.CustomChecksDir) {
		if ov, ok := cfg.CheckOverrides[name]; ok && ov.Enabled != nil && !*ov.Enabled {
			continue
		}
		if !containsName(enabled, name) {
			enabled = append(enabled, name)
		}
	}

	var defs []Definition
	for _, name := range enabled {
		def, err := loadOne(name, cfg)
		if err != nil {
			logger.Warn("skipping check", "check", name, "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadOne(name string, cfg config.Config) (Definition, error) {
	prompt, fc, err := readCheck(name, cfg.CustomChecksDir)
	if err != nil {
		return Definition{}, err
	}

	def := Definition{
		Name:            name,
		Prompt:          prompt,
		FilePatterns:    fc.FilePatterns,
		ExcludePatterns: fc.ExcludePatterns,
	}
	if len(def.FilePatterns) == 0 {
		def.FilePatterns = []string{"**/*"}
	}

	if ov, ok := cfg.CheckOverrides[name]; ok {
		// User-supplied patterns extend the check's own, they do not replace it.
		def.FilePatterns = append(def.FilePatterns, ov.FilePatterns...)
		def.ExcludePatterns = append(def.ExcludePatterns, ov.ExcludePatterns...)
		if ov.ExtraInstructions != "" {
			def.Prompt += "\n\n## Additional Instructions\n\n" + ov.ExtraInstructions
		}
	}

	return def, nil
}

// readCheck finds the prompt and config for a check, preferring the custom
// checks directory over the embedded builtins.
func readCheck(name, customDir string) (string, fileConfig, error) {
	if customDir != "" {
		promptPath := filepath.Join(customDir, name, "prompt.md")
		if data, err := os.ReadFile(promptPath); err == nil {
			fc := readFileConfig(filepath.Join(customDir, name, "config.yml"))
			return string(data), fc, nil
		}
	}

	data, err := builtinFS.ReadFile("builtin/" + name + "/prompt.md")
	if err != nil {
		return "", fileConfig{}, fmt.Errorf("no prompt.md for check %q", name)
	}
	var fc fileConfig
	if raw, err := builtinFS.ReadFile("builtin/" + name + "/config.yml"); err == nil {
		_ = yaml.Unmarshal(raw, &fc)
	}
	return string(data), fc, nil
}

func containsName(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func readFileConfig(path string) fileConfig {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc
	}
	_ = yaml.Unmarshal(data, &fc)
	return fc
}

// Discover returns the names of checks available in the custom directory
// that are not builtins: any subdirectory containing a prompt.md.
func Discover(customDir string) []string {
	if customDir == "" {
		return nil
	}
	entries, err := os.ReadDir(customDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(customDir, e.Name(), "prompt.md")); err == nil {
			names = append(names, e.Name())
		}
	}
	return names
}
