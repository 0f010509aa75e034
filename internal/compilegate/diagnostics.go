package compilegate

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"assemblyline/internal/artifact"
)

const maxGenericLines = 20

var (
	// src/a.ts(12,5): error TS2304: Cannot find name 'x'.
	reTSParen = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s+(error|warning)\s+(TS\d+):\s*(.*)$`)
	// src/a.ts:12:5 - error TS2304: Cannot find name 'x'.
	reTSPretty = regexp.MustCompile(`^(.+?):(\d+):(\d+)\s+-\s+(error|warning)\s+(TS\d+):\s*(.*)$`)
	// error TS5083: Cannot read file 'tsconfig.json'.
	reTSGlobal = regexp.MustCompile(`^(error|warning)\s+(TS\d+):\s*(.*)$`)
	// internal/x/y.go:3:8: undefined: Foo   (go build / go vet, optionally "vet: " prefixed)
	reGo = regexp.MustCompile(`^(?:vet:\s+)?(\S+?\.go):(\d+)(?::(\d+))?:\s*(.*)$`)

	reQuoted = regexp.MustCompile(`['"]([^'"]+)['"]`)
)

const (
	CodeCannotFindModule = "TS2307"
	CodeMissingTypes     = "TS7016"
	codeGo               = "go"
	codeToolchain        = "toolchain"
)

// ParseDiagnostics turns compiler text into toolchain errors. Paths are made relative
// to workDir. Indented lines following a diagnostic are folded into its message.
func ParseDiagnostics(text, workDir string) []artifact.ValidationError {
	var out []artifact.ValidationError
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")
		if line == "" {
			continue
		}
		if d, ok := parseLine(line, workDir); ok {
			out = append(out, d)
			continue
		}
		if len(out) > 0 && (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) {
			last := &out[len(out)-1]
			last.Message += " " + strings.TrimSpace(line)
		}
	}
	return out
}

func parseLine(line, workDir string) (artifact.ValidationError, bool) {
	if m := reTSParen.FindStringSubmatch(line); m != nil {
		return tsDiag(m[1], m[2], m[4], m[5], m[6], workDir), true
	}
	if m := reTSPretty.FindStringSubmatch(line); m != nil {
		return tsDiag(m[1], m[2], m[4], m[5], m[6], workDir), true
	}
	if m := reTSGlobal.FindStringSubmatch(line); m != nil {
		return artifact.ValidationError{
			Message:  fmt.Sprintf("%s: %s", m[2], m[3]),
			Severity: severity(m[1]),
			Kind:     artifact.KindToolchain,
			Code:     m[2],
		}, true
	}
	if m := reGo.FindStringSubmatch(line); m != nil {
		return artifact.ValidationError{
			File:     relPath(m[1], workDir),
			Line:     atoi(m[2]),
			Message:  m[4],
			Severity: artifact.SeverityError,
			Fixable:  true,
			Kind:     artifact.KindToolchain,
			Code:     codeGo,
		}, true
	}
	return artifact.ValidationError{}, false
}

func tsDiag(file, line, sev, code, msg, workDir string) artifact.ValidationError {
	return artifact.ValidationError{
		File:     relPath(file, workDir),
		Line:     atoi(line),
		Message:  fmt.Sprintf("%s: %s", code, msg),
		Severity: severity(sev),
		Fixable:  true,
		Kind:     artifact.KindToolchain,
		Code:     code,
	}
}

// genericFailure records a failed command whose output matched no diagnostic format.
func genericFailure(command string, exitCode int, text string) artifact.ValidationError {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > maxGenericLines {
		lines = lines[:maxGenericLines]
	}
	return artifact.ValidationError{
		Message:  fmt.Sprintf("%s exited with status %d: %s", command, exitCode, strings.Join(lines, "\n")),
		Severity: artifact.SeverityError,
		Kind:     artifact.KindToolchain,
		Code:     codeToolchain,
	}
}

// ModuleOf returns the first quoted name in a diagnostic message.
func ModuleOf(msg string) string {
	if m := reQuoted.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

// TypesPackage maps an npm package to its DefinitelyTyped name.
func TypesPackage(pkg string) string {
	if strings.HasPrefix(pkg, "@types/") {
		return pkg
	}
	if scope, name, ok := strings.Cut(strings.TrimPrefix(pkg, "@"), "/"); ok && strings.HasPrefix(pkg, "@") {
		return "@types/" + scope + "__" + name
	}
	return "@types/" + pkg
}

func severity(s string) artifact.Severity {
	if s == "warning" {
		return artifact.SeverityWarning
	}
	return artifact.SeverityError
}

func relPath(p, workDir string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if workDir != "" {
		root := strings.TrimSuffix(strings.ReplaceAll(workDir, `\`, "/"), "/") + "/"
		p = strings.TrimPrefix(p, root)
	}
	return path.Clean(strings.TrimPrefix(p, "./"))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
