package review

import (
	"fmt"
	"strings"

	"github.com/dexterite/prguard/internal/collect"
)

const schemaExample = `{
  "findings": [
    {
      "file": "relative/path/to/file.ext",
      "line": 42,
      "severity": "high",
      "category": "category-id",
      "title": "Short descriptive title",
      "description": "Detailed description of the issue",
      "suggestion": "How to fix it"
    }
  ],
  "summary": "Brief summary of findings"
}`

// BuildUserMessage composes the user-role message for one batch: the
// response-schema instructions followed by every file's content.
func BuildUserMessage(files []collect.File) string {
	var b strings.Builder
	b.WriteString("Analyze the following source files and report any findings.\n\n")
	b.WriteString("Respond with a JSON object in this exact schema:\n")
	b.WriteString("```json\n")
	b.WriteString(schemaExample)
	b.WriteString("\n```\n\n")
	b.WriteString("Allowed severity values: critical, high, medium, low, info\n")
	b.WriteString(`If no issues are found return: {"findings": [], "summary": "No issues found."}`)
	b.WriteString("\n\n---\n\n")

	for _, f := range files {
		fmt.Fprintf(&b, "### FILE: %s\n```\n%s\n```\n\n", f.Path, f.Content)
	}
	return b.String()
}
