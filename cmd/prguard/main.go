// Command prguard runs AI-powered review checks over a repository's
// changed files and ships the findings report.
package main

import (
	"os"

	"github.com/dexterite/prguard/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
