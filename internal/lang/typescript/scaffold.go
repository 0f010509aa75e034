package typescript

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang"
)

const generatedMarker = "// Code generated by assemblyline. DO NOT EDIT."

var reProjectName = regexp.MustCompile(`[^a-z0-9._-]+`)

func (a *Adapter) Scaffold(opts lang.ScaffoldOptions) []artifact.GeneratedFile {
	name := reProjectName.ReplaceAllString(strings.ToLower(strings.TrimSpace(opts.ProjectName)), "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "app"
	}
	pkg := fmt.Sprintf(`{
  "name": %q,
  "version": "0.1.0",
  "private": true,
  "type": "module",
  "scripts": {
    "build": "tsc -p .",
    "typecheck": "tsc --noEmit"
  },
  "dependencies": {},
  "devDependencies": {
    "@types/node": "^20.11.0",
    "typescript": "^5.4.0"
  }
}
`, name)
	tsconfig := `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "ESNext",
    "moduleResolution": "Bundler",
    "jsx": "react-jsx",
    "strict": true,
    "esModuleInterop": true,
    "skipLibCheck": true,
    "resolveJsonModule": true,
    "baseUrl": ".",
    "paths": {
      "@/*": ["./src/*"]
    },
    "outDir": "dist"
  },
  "include": ["src"]
}
`
	return []artifact.GeneratedFile{
		{Path: "package.json", Content: pkg},
		{Path: "tsconfig.json", Content: tsconfig},
		{Path: ".gitignore", Content: "node_modules/\ndist/\n"},
	}
}

// Wire generates src/routes/index.ts re-exporting every route module. A hand-written
// index is left alone.
func (a *Adapter) Wire(files lang.Files) []artifact.GeneratedFile {
	dir := a.structure.Dir(lang.RoleRoutes)
	indexPath := path.Join(dir, "index.ts")
	if existing, ok := files.Get(indexPath); ok && !strings.HasPrefix(existing, generatedMarker) {
		return nil
	}
	var modules []string
	for _, p := range files.Paths() {
		if path.Dir(p) != dir || !a.structure.IsSource(p) {
			continue
		}
		stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if stem == "index" {
			continue
		}
		modules = append(modules, p)
	}
	if len(modules) == 0 {
		return nil
	}
	sort.Strings(modules)

	var b strings.Builder
	b.WriteString(generatedMarker + "\n\n")
	for _, p := range modules {
		stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
		content, _ := files.Get(p)
		hasDefault, hasNamed := false, false
		for _, e := range a.ParseExports(content, p) {
			if e.Kind == artifact.ExportDefault {
				hasDefault = true
			} else {
				hasNamed = true
			}
		}
		if hasDefault {
			fmt.Fprintf(&b, "export { default as %s } from './%s';\n", camelIdent(stem), stem)
		}
		if hasNamed {
			fmt.Fprintf(&b, "export * from './%s';\n", stem)
		}
	}
	return []artifact.GeneratedFile{{Path: indexPath, Content: b.String()}}
}

// camelIdent turns "user-routes" or "user.routes" into "userRoutes".
func camelIdent(stem string) string {
	parts := strings.FieldsFunc(stem, func(r rune) bool {
		return !(r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	if len(parts) == 0 {
		return "routes"
	}
	var b strings.Builder
	for i, p := range parts {
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]) + p[1:])
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
