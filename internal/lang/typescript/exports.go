package typescript

import (
	"regexp"
	"strings"

	"assemblyline/internal/artifact"
)

const ident = `[A-Za-z_$][\w$]*`

var (
	// export function f | export async function* f | export class C | export const x | export interface I ...
	reExportDecl = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:declare\s+)?(?:async\s+)?(function\s*\*?|abstract\s+class|class|const\s+enum|enum|interface|type|namespace|module|const|let|var)\s+(` + ident + `)`)
	// export const { a, b: c } = obj
	reExportDestructure = regexp.MustCompile(`(?m)^[ \t]*export\s+(?:const|let|var)\s+\{([^}]*)\}\s*=`)
	reExportDefault     = regexp.MustCompile(`(?m)^[ \t]*export\s+default\b`)
	// export { a, b as c } [from 'm']
	reExportList = regexp.MustCompile(`(?m)^[ \t]*export\s+(type\s+)?\{([^}]*)\}(?:\s*from\s*['"]([^'"\n]+)['"])?`)
	// export * from 'm' | export * as ns from 'm'
	reExportStar = regexp.MustCompile(`(?m)^[ \t]*export\s+\*\s*(?:as\s+(` + ident + `)\s*)?from\s*['"]([^'"\n]+)['"]`)

	reModuleExports    = regexp.MustCompile(`(?m)^[ \t]*module\.exports\s*=`)
	reCommonJSNamed    = regexp.MustCompile(`(?m)^[ \t]*(?:module\.)?exports\.(` + ident + `)\s*=`)
	reTopLevelDeclared = regexp.MustCompile(`(?m)^(?:export\s+)?(?:declare\s+)?(?:default\s+)?(?:async\s+)?(?:function\s*\*?|abstract\s+class|class|const\s+enum|enum|interface|type|const|let|var)\s+(` + ident + `)`)
)

// ParseExports extracts exported symbols. Star re-exports are returned as "*" records
// carrying the source specifier; the graph builder follows them one hop.
func (a *Adapter) ParseExports(content, path string) []artifact.ExportRecord {
	src := blankComments(content, false)
	seen := map[string]bool{}
	var out []artifact.ExportRecord
	add := func(name string, kind artifact.ExportKind, from string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := name
		if name == artifact.NamespaceSymbol {
			key = name + "|" + from
		}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, artifact.ExportRecord{File: path, SymbolName: name, Kind: kind, From: from})
	}

	for _, m := range reExportDecl.FindAllStringSubmatch(src, -1) {
		kind := artifact.ExportValue
		switch strings.Fields(m[1])[0] {
		case "interface", "type":
			kind = artifact.ExportType
		}
		add(m[2], kind, "")
	}
	for _, m := range reExportDestructure.FindAllStringSubmatch(src, -1) {
		for _, item := range splitList(m[1]) {
			name := item
			if i := strings.Index(item, ":"); i >= 0 {
				name = item[i+1:]
			}
			name = strings.TrimSpace(strings.SplitN(name, "=", 2)[0])
			add(name, artifact.ExportValue, "")
		}
	}
	if reExportDefault.MatchString(src) || reModuleExports.MatchString(src) {
		add(artifact.DefaultSymbol, artifact.ExportDefault, "")
	}
	for _, m := range reExportList.FindAllStringSubmatch(src, -1) {
		kind := artifact.ExportValue
		if strings.TrimSpace(m[1]) != "" {
			kind = artifact.ExportType
		}
		for _, item := range splitList(m[2]) {
			itemKind := kind
			if strings.HasPrefix(item, "type ") {
				itemKind = artifact.ExportType
			}
			_, exported := listItem(item)
			if exported == artifact.DefaultSymbol {
				itemKind = artifact.ExportDefault
			}
			add(exported, itemKind, "")
		}
	}
	for _, m := range reExportStar.FindAllStringSubmatch(src, -1) {
		if m[1] != "" {
			add(m[1], artifact.ExportValue, "")
			continue
		}
		add(artifact.NamespaceSymbol, artifact.ExportValue, m[2])
	}
	for _, m := range reCommonJSNamed.FindAllStringSubmatch(src, -1) {
		add(m[1], artifact.ExportValue, "")
	}
	return out
}

// CatchAllExport reports whether the file's only export is a default/module.exports one.
func (a *Adapter) CatchAllExport(content, path string) bool {
	exports := a.ParseExports(content, path)
	hasDefault := false
	for _, e := range exports {
		if e.Kind == artifact.ExportDefault {
			hasDefault = true
			continue
		}
		return false
	}
	return hasDefault
}

// DeclaredSymbols lists names declared at the top level (column zero) of the file.
func (a *Adapter) DeclaredSymbols(content, _ string) []string {
	src := blankComments(content, false)
	seen := map[string]bool{}
	var out []string
	for _, m := range reTopLevelDeclared.FindAllStringSubmatch(src, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// AppendNamedExports adds an explicit `export { ... };` line at the end of content.
func (a *Adapter) AppendNamedExports(content string, names []string) string {
	if len(names) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("export { ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(" };\n")
	return b.String()
}
