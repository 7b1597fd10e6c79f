package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dexterite/prguard/internal/checks"
	"github.com/dexterite/prguard/internal/config"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List available checks and whether they are enabled",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = ExitUsageError
			return
		}

		enabled := make(map[string]bool)
		for _, name := range config.EnabledCheckNames(cfg) {
			enabled[name] = true
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tENABLED")
		for _, name := range config.BuiltinChecks {
			fmt.Fprintf(w, "%s\tbuiltin\t%s\n", name, yesNo(enabled[name]))
		}
		if cfg.CustomChecksDir != "" {
			for _, name := range checks.Discover(cfg.CustomChecksDir) {
				fmt.Fprintf(w, "%s\tcustom\t%s\n", name, yesNo(enabled[name]))
			}
		}
		w.Flush()
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
