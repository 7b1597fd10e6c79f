package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// Exit codes. CI gates branch on these, so they are part of the contract.
const (
	ExitSuccess      = 0 // run completed, nothing at or above the threshold
	ExitFindings     = 1 // findings at or above the severity threshold
	ExitUsageError   = 2 // bad flags or configuration
	ExitAuthError    = 3 // missing or rejected credentials
	ExitRuntimeError = 4 // run-level failure (timeout, cancellation)
)

var rootCmd = &cobra.Command{
	Use:   "prguard",
	Short: "AI-powered code review for pull requests",
	Long: "PR Guard runs configurable AI review checks over the changed files of a\n" +
		"repository and ships the findings to GitHub, a file, or a webhook.",
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print prguard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "prguard version %s\n", version)
	},
}
