package typescript

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"assemblyline/internal/artifact"
)

var (
	incompleteTailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(const|let|var|import|export|return|await|throw|new)\b\s*$`),
		regexp.MustCompile(`^(if|for|while|switch|catch)\b[^{};]*$`),
		regexp.MustCompile(`^(async\s+)?function\b[^{}]*$`),
	}
	reConsoleLog = regexp.MustCompile(`(?m)^[ \t]*console\.log\(`)
)

// ValidateFile runs cheap per-file checks that catch broken generator output before
// the compiler sees it.
func (a *Adapter) ValidateFile(content, p string) []artifact.ValidationError {
	if !a.FileStructure().IsSource(p) {
		return nil
	}
	var out []artifact.ValidationError
	report := func(line int, sev artifact.Severity, fixable bool, format string, args ...any) {
		out = append(out, artifact.ValidationError{
			File:     p,
			Line:     line,
			Message:  fmt.Sprintf(format, args...),
			Severity: sev,
			Fixable:  fixable,
			Kind:     artifact.KindSymbol,
		})
	}

	if strings.TrimSpace(content) == "" {
		report(0, artifact.SeverityWarning, true, "%s is empty", p)
		return out
	}

	for i, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "<<<<<<< "), strings.HasPrefix(line, ">>>>>>> "), line == "=======":
			report(i+1, artifact.SeverityError, true, "merge conflict marker in %s", p)
		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			report(i+1, artifact.SeverityError, true, "stray markdown code fence in %s", p)
		}
	}

	if msg := truncatedTail(content); msg != "" {
		report(strings.Count(strings.TrimRight(content, "\n\t "), "\n")+1, artifact.SeverityError, true, "%s: likely truncated source file (%s)", p, msg)
	} else if open := unclosedBraces(content); open > 0 {
		report(0, artifact.SeverityError, true, "%s: likely truncated source file (%d unclosed braces)", p, open)
	} else if open < 0 {
		report(0, artifact.SeverityWarning, true, "%s: %d unmatched closing braces", p, -open)
	}

	if !isEntry(p) {
		if loc := reConsoleLog.FindStringIndex(blankComments(content, false)); loc != nil {
			report(lineAt(content, loc[0]), artifact.SeverityWarning, true, "console.log left in %s", p)
		}
	}
	return out
}

func truncatedTail(content string) string {
	trimmed := strings.TrimSpace(blankComments(content, false))
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	for _, re := range incompleteTailPatterns {
		if re.MatchString(last) {
			return fmt.Sprintf("abrupt EOF after '%s'", last)
		}
	}
	for _, suffix := range []string{"=", "=>", ".", ",", ":", "(", "["} {
		if strings.HasSuffix(last, suffix) {
			return fmt.Sprintf("abrupt EOF near '%s'", last)
		}
	}
	return ""
}

// unclosedBraces returns opening minus closing curly braces outside comments and strings.
func unclosedBraces(content string) int {
	src := blankComments(content, true)
	return strings.Count(src, "{") - strings.Count(src, "}")
}

func isEntry(p string) bool {
	base := strings.TrimSuffix(path.Base(p), path.Ext(p))
	switch base {
	case "main", "index", "server", "app", "cli":
		return true
	}
	return strings.Contains(p, "scripts/")
}
