package repair

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

const (
	diffContext  = 3
	maxDiffBytes = 64 << 10
)

// FileDiff is the unified patch of one file changed by a fix.
type FileDiff struct {
	Path string `json:"path"`
	// Source is "autofix" for deterministic fixes and "synth" for model fixes.
	Source   string `json:"source"`
	Patch    string `json:"patch"`
	Oversize bool   `json:"oversize,omitempty"`
}

// Unified renders before→after as a unified patch. An empty before is shown as /dev/null.
func Unified(path, before, after string) (string, bool) {
	from, to := "a/"+path, "b/"+path
	if before == "" {
		from = "/dev/null"
	}
	if len(before)+len(after) > maxDiffBytes {
		return fmt.Sprintf("--- %s\n+++ %s\n@@ patch omitted (%d bytes) @@\n", from, to, len(before)+len(after)), true
	}
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: from,
		ToFile:   to,
		Context:  diffContext,
	})
	if err != nil {
		return "", false
	}
	return s, false
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if last := lines[len(lines)-1]; !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}

// Stat counts added and removed lines in a unified patch.
func Stat(patch string) (added, removed int) {
	for _, l := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
		case strings.HasPrefix(l, "+"):
			added++
		case strings.HasPrefix(l, "-"):
			removed++
		}
	}
	return added, removed
}
