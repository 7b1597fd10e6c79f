package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dexterite/prguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: "Prints the configuration after merging defaults, the config file,\n" +
		"environment variables, and flags. Credentials are never printed.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitUsageError
			return
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitRuntimeError
			return
		}
		fmt.Print(string(data))

		fmt.Printf("# api-key: %s\n", presence(cfg.APIKey))
		fmt.Printf("# github-token: %s\n", presence(cfg.GitHubToken))
		fmt.Printf("# resolved checks: %s\n", strings.Join(config.EnabledCheckNames(cfg), ", "))
	},
}

func presence(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "(set)"
}
