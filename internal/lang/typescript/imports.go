package typescript

import (
	"regexp"
	"sort"
	"strings"

	"assemblyline/internal/artifact"
)

var (
	// import X from 'm' | import { a, b as c } from 'm' | import X, * as ns from 'm'
	reImportFrom = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:type\s+)?([^'";]+?)\s+from\s*['"]([^'"\n]+)['"]`)
	// import 'm'
	reImportSide = regexp.MustCompile(`(?m)^[ \t]*import\s*['"]([^'"\n]+)['"]`)
	// export { a } from 'm' | export * from 'm' | export * as ns from 'm'
	reExportFromImport = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:type\s+)?(\*(?:\s*as\s+[A-Za-z_$][\w$]*)?|\{[^}]*\})\s*from\s*['"]([^'"\n]+)['"]`)
	// const { a, b } = require('m') | const x = require('m')
	reRequireBind = regexp.MustCompile(`(?:const|let|var)\s+(\{[^}]*\}|[A-Za-z_$][\w$]*)\s*=\s*require\(\s*['"]([^'"\n]+)['"]\s*\)`)
	reRequireAny  = regexp.MustCompile(`\brequire\(\s*['"]([^'"\n]+)['"]\s*\)`)
	// import('m')
	reDynamicImport = regexp.MustCompile(`\bimport\(\s*['"]([^'"\n]+)['"]\s*\)`)
)

// ParseImports extracts import statements syntactically. Comments are ignored.
func (a *Adapter) ParseImports(content, path string) []artifact.ImportRecord {
	src := blankComments(content, false)
	type key struct {
		spec string
		line int
	}
	seen := map[key]bool{}
	var out []artifact.ImportRecord
	add := func(off int, spec string, symbols []string) {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			return
		}
		line := lineAt(src, off)
		k := key{spec, line}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, artifact.ImportRecord{
			ImportingFile:   path,
			ImportedSymbols: symbols,
			ModuleSpecifier: spec,
			SourceLine:      line,
		})
	}

	for _, m := range reImportFrom.FindAllStringSubmatchIndex(src, -1) {
		clause := src[m[2]:m[3]]
		add(m[0], src[m[4]:m[5]], importClauseSymbols(clause))
	}
	for _, m := range reImportSide.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], src[m[2]:m[3]], nil)
	}
	for _, m := range reExportFromImport.FindAllStringSubmatchIndex(src, -1) {
		clause := strings.TrimSpace(src[m[2]:m[3]])
		var symbols []string
		if strings.HasPrefix(clause, "*") {
			symbols = []string{artifact.NamespaceSymbol}
		} else {
			for _, item := range splitList(strings.Trim(clause, "{}")) {
				source, _ := listItem(item)
				symbols = append(symbols, source)
			}
		}
		add(m[0], src[m[4]:m[5]], symbols)
	}
	bound := map[int]bool{}
	for _, m := range reRequireBind.FindAllStringSubmatchIndex(src, -1) {
		target := strings.TrimSpace(src[m[2]:m[3]])
		var symbols []string
		if strings.HasPrefix(target, "{") {
			for _, item := range splitList(strings.Trim(target, "{}")) {
				// CommonJS destructuring uses ':' for renames.
				name := strings.TrimSpace(strings.SplitN(item, ":", 2)[0])
				symbols = append(symbols, name)
			}
		} else {
			symbols = []string{artifact.DefaultSymbol}
		}
		bound[m[4]] = true
		add(m[0], src[m[4]:m[5]], symbols)
	}
	for _, m := range reRequireAny.FindAllStringSubmatchIndex(src, -1) {
		if bound[m[2]] {
			continue
		}
		add(m[0], src[m[2]:m[3]], []string{artifact.DefaultSymbol})
	}
	for _, m := range reDynamicImport.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], src[m[2]:m[3]], []string{artifact.NamespaceSymbol})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SourceLine != out[j].SourceLine {
			return out[i].SourceLine < out[j].SourceLine
		}
		return out[i].ModuleSpecifier < out[j].ModuleSpecifier
	})
	return out
}

// importClauseSymbols maps an import clause to the names it pulls from the module.
// Default imports map to "default" and namespace imports to "*".
func importClauseSymbols(clause string) []string {
	clause = strings.TrimSpace(clause)
	var out []string
	for clause != "" {
		switch {
		case strings.HasPrefix(clause, "{"):
			end := strings.Index(clause, "}")
			if end < 0 {
				end = len(clause) - 1
			}
			for _, item := range splitList(clause[1:end]) {
				source, _ := listItem(item)
				out = append(out, source)
			}
			clause = strings.TrimSpace(clause[end+1:])
		case strings.HasPrefix(clause, "*"):
			out = append(out, artifact.NamespaceSymbol)
			clause = ""
		default:
			head, rest, _ := strings.Cut(clause, ",")
			if strings.TrimSpace(head) != "" {
				out = append(out, artifact.DefaultSymbol)
			}
			clause = strings.TrimSpace(rest)
		}
		clause = strings.TrimSpace(strings.TrimPrefix(clause, ","))
	}
	return out
}
