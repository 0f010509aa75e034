package synth

import (
	"bytes"
	"fmt"
	"strings"
)

// promptSpec is the sectioned prompt layout shared by generate and fix requests.
type promptSpec struct {
	Purpose      string
	Background   string
	Rules        []string
	OutputFormat string
}

func (p promptSpec) render() string {
	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", p.Purpose)
	writeSection(&buf, "BACKGROUND", p.Background)
	writeSection(&buf, "RULES", formatList(p.Rules))
	writeSection(&buf, "OUTPUT_FORMAT", p.OutputFormat)
	return strings.TrimSpace(buf.String()) + "\n"
}

const filesOutputFormat = `Return only a JSON object of the form
{"files":[{"path":"<repo-relative path>","content":"<complete file content>"}]}
No markdown, no commentary.`

func generatePrompt(stack string) string {
	return promptSpec{
		Purpose: fmt.Sprintf("Write the missing %s source files listed in the input.", stack),
		Background: "Other files of the project already import these files. " +
			"The input lists, for each missing file, the path it must be written to, the named exports " +
			"its importers need and the importing files (with their content when available).",
		Rules: []string{
			"Write exactly one file per entry of `missing`, at its `expected_path`.",
			"Export every name listed in `required_exports` as a named export with that exact spelling.",
			"Keep files self-contained; import only from files listed in the input or from well known packages.",
			"Follow the directory layout given in `layout`.",
			"Return complete file contents, never placeholders or ellipses.",
		},
		OutputFormat: filesOutputFormat,
	}.render()
}

func fixPrompt(stack string) string {
	return promptSpec{
		Purpose:    fmt.Sprintf("Fix the listed errors in a %s project.", stack),
		Background: "The input carries the errors, the current content of the affected files, the sibling files of each directory and, per file, the names other files import from it.",
		Rules: []string{
			"Return the full corrected content of every file you change.",
			"Only change files listed in `files`, unless an error names a file that does not exist yet.",
			"Keep every name listed in `expected` exported from its file.",
			"Prefer fixing an import path to match an existing sibling over creating a new file.",
			"Do not remove working code to silence an error.",
		},
		OutputFormat: filesOutputFormat,
	}.render()
}

func formatList(items []string) string {
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[" + title + "]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
